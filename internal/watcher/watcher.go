package watcher

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"PgLogPump/internal/models"
	"PgLogPump/internal/storage"
)

// Emitter принимает разобранные события. В пакетном режиме это очередь sink,
// в режиме аудита - синхронная запись.
type Emitter interface {
	Emit(ctx context.Context, ev models.LogEvent) error
}

// EmitterFunc - функция как Emitter
type EmitterFunc func(ctx context.Context, ev models.LogEvent) error

func (f EmitterFunc) Emit(ctx context.Context, ev models.LogEvent) error { return f(ctx, ev) }

const (
	// saveInterval - как часто смещения сбрасываются в хранилище
	saveInterval = 30 * time.Second

	DefaultRetryInterval    = 500 * time.Millisecond
	DefaultMaxRetryInterval = 30 * time.Second
)

type Config struct {
	// Dirs - имя источника → каталог с логами
	Dirs           map[string]string
	FilePattern    string
	RescanInterval time.Duration
	Logger         *zap.Logger
	Store          storage.ProcessedStore
	Emitter        Emitter

	// RetryInterval и MaxRetryInterval - первая и максимальная пауза между повторами Emit
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

type Watcher struct {
	cfg     Config
	pattern *regexp.Regexp

	mu          sync.RWMutex
	files       map[string]*fileTail
	processed   map[string]int64
	watchedDirs map[string]struct{}
	wg          sync.WaitGroup

	ctx context.Context
}

// New проверяет шаблон имени файла и загружает сохранённые смещения
func New(cfg Config) (*Watcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MaxRetryInterval < cfg.RetryInterval {
		cfg.MaxRetryInterval = max(DefaultMaxRetryInterval, cfg.RetryInterval)
	}
	pattern, err := compilePattern(cfg.FilePattern)
	if err != nil {
		return nil, err
	}

	processed, err := cfg.Store.Load()
	if err != nil {
		cfg.Logger.Error("Не удалось загрузить смещения, читаем файлы с начала", zap.Error(err))
		processed = make(map[string]int64)
	}

	return &Watcher{
		cfg:         cfg,
		pattern:     pattern,
		files:       make(map[string]*fileTail),
		processed:   processed,
		watchedDirs: make(map[string]struct{}),
	}, nil
}

// addWatchers рекурсивно добавляет наблюдателей для директорий
func (w *Watcher) addWatchers(dir string, dw *fsnotify.Watcher) {
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.cfg.Logger.Debug("Ошибка при обходе директории", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, exists := w.watchedDirs[path]; exists {
			return nil
		}
		if err := dw.Add(path); err != nil {
			w.cfg.Logger.Error("Ошибка добавления наблюдателя", zap.String("dir", path), zap.Error(err))
			return nil
		}
		w.watchedDirs[path] = struct{}{}
		w.cfg.Logger.Debug("Добавлен наблюдатель для директории", zap.String("dir", path))
		return nil
	})
}

// runPeriodicScan периодически сканирует директории: fsnotify теряет события на сетевых дисках
func (w *Watcher) runPeriodicScan() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.RescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.cfg.Logger.Debug("Запуск периодического сканирования директорий")
			w.scanFiles()
		}
	}
}

// runPeriodicSave периодически сохраняет смещения
func (w *Watcher) runPeriodicSave() {
	defer w.wg.Done()
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.saveOffsets()
		}
	}
}

// Start блокируется до отмены контекста. При остановке tail-ы закрываются, смещения сохраняются.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	dw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer dw.Close()

	for _, dir := range w.cfg.Dirs {
		w.addWatchers(dir, dw)
	}

	w.scanFiles()

	w.wg.Add(3)
	go w.handleDirEvents(dw)
	go w.runPeriodicScan()
	go w.runPeriodicSave()

	<-ctx.Done()
	w.cfg.Logger.Info("Watcher остановлен по сигналу shutdown")

	w.mu.Lock()
	tails := make([]*fileTail, 0, len(w.files))
	for path, ft := range w.files {
		tails = append(tails, ft)
		delete(w.files, path)
	}
	w.mu.Unlock()
	for _, ft := range tails {
		ft.halt()
	}
	w.wg.Wait()

	w.saveOffsets()
	return nil
}

// Offsets - копия текущих смещений
func (w *Watcher) Offsets() map[string]int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]int64, len(w.processed))
	for k, v := range w.processed {
		out[k] = v
	}
	return out
}

func (w *Watcher) saveOffsets() {
	if err := w.cfg.Store.Save(w.Offsets()); err != nil {
		w.cfg.Logger.Error("Не удалось сохранить смещения", zap.Error(err))
	}
}
