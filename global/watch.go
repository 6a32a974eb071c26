package global

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"PNotepad/logger"
	"PNotepad/tools/errs"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes and hands every
// valid result to onChange. Invalid edits are logged and skipped. The parent
// directory is watched so editors that replace the file are picked up. Watch
// returns when ctx is done.
func Watch(ctx context.Context, path string, onChange func(AppConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.WrapMsg(err, "config watcher")
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return errs.WrapMsg(err, "watch config dir", "path", path)
	}

	log := logger.Named("config")
	name := filepath.Base(path)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("path", path))
		onChange(cfg)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, reload)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
