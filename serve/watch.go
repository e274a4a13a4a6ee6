package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the bursts of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// configWatcher calls onChange when config.toml or a prompt template in dir changes.
type configWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func()
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// watchConfigDir starts watching dir. The directory must exist.
func watchConfigDir(dir string, debounce time.Duration, onChange func()) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	cw := &configWatcher{
		watcher:  w,
		onChange: onChange,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

// isConfigFile reports whether a change to path affects the engine.
func isConfigFile(path string) bool {
	name := filepath.Base(path)
	return name == "config.toml" || strings.HasSuffix(name, "_prompt.md")
}

func (cw *configWatcher) run() {
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			slog.Debug("config change", "path", event.Name, "op", event.Op.String())
			cw.schedule()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (cw *configWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.onChange)
}

// Close stops watching.
func (cw *configWatcher) Close() error {
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	close(cw.done)
	return cw.watcher.Close()
}
