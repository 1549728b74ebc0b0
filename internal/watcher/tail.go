package watcher

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"PgLogPump/internal/models"
	"PgLogPump/internal/parser"
)

// fileTail - tail файла и сигнал его остановки
type fileTail struct {
	t        *tail.Tail
	stop     chan struct{}
	stopOnce sync.Once

	// pos - смещение конца последней принятой строки; меняет только readTail
	pos int64
}

// halt прерывает повторы Emit и останавливает tail
func (ft *fileTail) halt() {
	ft.stopOnce.Do(func() { close(ft.stop) })
	_ = ft.t.Stop()
}

func (ft *fileTail) stopped() bool {
	select {
	case <-ft.stop:
		return true
	default:
		return false
	}
}

// startTail запускает tail для файла, начиная с сохранённого смещения
func (w *Watcher) startTail(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if _, exists := w.files[path]; exists {
		return
	}

	offset := w.processed[path]
	// файл пересоздан или усечён - читаем заново
	if info, err := os.Stat(path); err == nil && info.Size() < offset {
		w.cfg.Logger.Info("Файл стал короче сохранённого смещения, читаем с начала", zap.String("file", path))
		offset = 0
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		w.cfg.Logger.Error("Ошибка открытия tail", zap.String("file", path), zap.Error(err))
		return
	}
	ft := &fileTail{t: t, stop: make(chan struct{}), pos: offset}
	w.files[path] = ft
	w.cfg.Logger.Info("Запущен tail для файла", zap.String("file", path), zap.Int64("offset", offset))

	w.wg.Add(1)
	go w.readTail(path, ft)
}

// stopTail останавливает tail и сохраняет смещения
func (w *Watcher) stopTail(path string) {
	w.mu.Lock()
	ft, ok := w.files[path]
	if ok {
		delete(w.files, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	ft.halt()
	w.saveOffsets()
}

// readTail читает по одному JSON-событию на строку и передаёт их Emitter-у.
// Смещение двигается после строки, принятой Emitter-ом или пропущенной как неразобранная.
// Считаем его по длине строк: Tell у tail может уже стоять за следующей, прочитанной заранее строкой.
// Канал дочитывается до закрытия даже после остановки: иначе Stop у tail зависнет на отправке строки.
func (w *Watcher) readTail(path string, ft *fileTail) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Error("Паника в readTail восстановлена", zap.String("file", path), zap.Any("error", r))
		}
	}()

	t := ft.t
	for line := range t.Lines {
		if w.ctx.Err() != nil || ft.stopped() {
			continue
		}
		if line.Err != nil {
			w.cfg.Logger.Warn("Ошибка чтения строки", zap.String("file", path), zap.Error(line.Err))
			continue
		}
		if !w.handleLine(path, line.Text, ft.stop) {
			// строка не принята до остановки: смещение не двигаем, после рестарта она прочитается снова
			continue
		}
		next := ft.pos + int64(len(line.Text)) + 1
		if off, err := t.Tell(); err == nil && off > 0 && off < next {
			// tail переоткрыл файл после усечения, дальше считаем от его позиции (0 - файл уже закрыт)
			next = off
		}
		ft.pos = next
		w.mu.Lock()
		w.processed[path] = next
		w.mu.Unlock()
	}
}

// handleLine разбирает строку и передаёт событие Emitter-у.
// false - событие не принято до отмены контекста или остановки tail.
func (w *Watcher) handleLine(path, text string, stop <-chan struct{}) bool {
	if strings.Contains(text, "\x00") {
		w.cfg.Logger.Warn("Обнаружены нулевые байты в строке", zap.String("file", path))
		text = strings.ReplaceAll(text, "\x00", "")
	}
	if strings.TrimSpace(text) == "" {
		return true
	}
	ev, err := parser.ParseLine([]byte(text))
	if err != nil {
		// повтор не поможет, строку пропускаем
		w.cfg.Logger.Warn("Ошибка парсинга лога", zap.String("file", path), zap.Error(err))
		return true
	}
	return w.emitWithRetry(path, ev, stop)
}

// emitWithRetry повторяет Emit с растущей паузой, пока событие не примут или не отменят контекст.
// Пока идут повторы, чтение файла стоит: это и есть обратное давление на tail.
func (w *Watcher) emitWithRetry(path string, ev models.LogEvent, stop <-chan struct{}) bool {
	delay := w.cfg.RetryInterval
	for attempt := 1; ; attempt++ {
		err := w.cfg.Emitter.Emit(w.ctx, ev)
		if err == nil {
			return true
		}
		w.cfg.Logger.Error("Событие не записано, повтор",
			zap.String("file", path), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return false
		case <-stop:
			timer.Stop()
			return false
		case <-timer.C:
		}
		delay *= 2
		if delay > w.cfg.MaxRetryInterval {
			delay = w.cfg.MaxRetryInterval
		}
	}
}
