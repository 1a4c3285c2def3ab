package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	log "github.com/quotapace/quotapace/internal/logging"
)

// Watcher reloads the config file on change and notifies a single callback.
// Editor write patterns (rename + create, double writes) are absorbed by a
// short debounce so subscribers see one reload per edit.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending *time.Timer
	closed  bool
}

const watchDebounce = 250 * time.Millisecond

// NewWatcher starts watching path. onChange runs on the watcher goroutine
// with an already-sanitized config.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: most editors replace the file.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, onChange: onChange, fsw: fsw}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(watchDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		log.WithError(err).Warnf("config reload failed, keeping previous config")
		return
	}
	ApplyEnvOverrides(cfg)
	log.Infof("config reloaded from %s", w.path)
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
