package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the config file must stay quiet before a reload.
const DefaultDebounce = 200 * time.Millisecond

// Reload carries the result of re-reading the config file.
type Reload struct {
	Config *Config
	Err    error
	At     time.Time
}

// Watcher reloads the config file whenever it changes on disk.
// The parent directory is watched so editors that replace the file by rename
// are still observed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	loader    *Loader
	path      string
	debounce  time.Duration
	reloads   chan Reload

	// Debouncing state
	dirty   bool
	dirtyAt time.Time
	dirtyMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(loader *Loader, path string, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		path = loader.DefaultConfigPath()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		loader:    loader,
		path:      filepath.Clean(path),
		debounce:  debounce,
		reloads:   make(chan Reload, 4),
	}, nil
}

// Start begins watching. A missing config directory is created so the file
// can be observed once it appears.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceProcessor(ctx)
	return nil
}

// Reloads returns the channel of reload results.
func (w *Watcher) Reloads() <-chan Reload {
	return w.reloads
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	close(w.reloads)
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.dirtyMu.Lock()
			w.dirty = true
			w.dirtyAt = time.Now()
			w.dirtyMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emit(Reload{Err: err, At: time.Now()})
		}
	}
}

func (w *Watcher) debounceProcessor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.settled() {
				cfg, err := w.loader.LoadFromFile(w.path)
				if err == nil {
					err = cfg.Validate()
				}
				if err != nil {
					cfg = nil
				}
				w.emit(Reload{Config: cfg, Err: err, At: time.Now()})
			}
		}
	}
}

// settled reports and clears a change that has been quiet for the debounce window.
func (w *Watcher) settled() bool {
	w.dirtyMu.Lock()
	defer w.dirtyMu.Unlock()
	if !w.dirty || time.Since(w.dirtyAt) < w.debounce {
		return false
	}
	w.dirty = false
	return true
}

func (w *Watcher) emit(r Reload) {
	select {
	case w.reloads <- r:
	default:
		// Drop if the consumer is behind; the next change triggers another reload.
	}
}
