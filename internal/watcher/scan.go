package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// compilePattern переводит маску вида "*.clef" или "app-????.json" в регулярное выражение
func compilePattern(mask string) (*regexp.Regexp, error) {
	if mask == "" {
		return nil, fmt.Errorf("empty file pattern")
	}
	expr := regexp.QuoteMeta(mask)
	expr = strings.ReplaceAll(expr, `\*`, ".*")
	expr = strings.ReplaceAll(expr, `\?`, ".")
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("file pattern %q: %w", mask, err)
	}
	return re, nil
}

func (w *Watcher) matches(path string) bool {
	return w.pattern.MatchString(filepath.Base(path))
}

// handleDirEvents обрабатывает fsnotify события в папках
func (w *Watcher) handleDirEvents(dw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-dw.Events:
			if !ok {
				return
			}
			w.handleEvent(dw, ev)
		case err, ok := <-dw.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Error("Ошибка watcher для каталогов", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(dw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addWatchers(ev.Name, dw)
			w.scanDir(ev.Name)
			return
		}
	}
	if !w.matches(ev.Name) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.startTail(ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.stopTail(ev.Name)
	}
}

// scanFiles запускает tail для всех подходящих файлов, от старых к новым.
// Уже открытые файлы пропускаются; остальные читаются с сохранённого смещения.
func (w *Watcher) scanFiles() {
	for _, dir := range w.cfg.Dirs {
		w.scanDir(dir)
	}
}

func (w *Watcher) scanDir(dir string) {
	type fileWithTime struct {
		Path string
		Mod  time.Time
	}
	var found []fileWithTime
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if w.matches(path) {
			found = append(found, fileWithTime{Path: path, Mod: info.ModTime()})
		}
		return nil
	})
	sort.Slice(found, func(i, j int) bool {
		return found[i].Mod.Before(found[j].Mod)
	})
	for _, f := range found {
		w.startTail(f.Path)
	}
}
