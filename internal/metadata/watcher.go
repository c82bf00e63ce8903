package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"tablequery/pkg/logger"
)

// ReloadListener is called after every reload attempt. err is non-nil when the
// file could not be loaded; the registry then keeps its previous definitions.
type ReloadListener func(tables []TableDef, err error)

// Watcher reloads a Registry whenever its schema file changes.
//
// The parent directory is watched rather than the file, so editors that replace
// the file through a rename are picked up too.
type Watcher struct {
	path     string
	registry *Registry

	listeners   []ReloadListener
	listenersMu sync.RWMutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewWatcher creates a watcher for path feeding registry.
func NewWatcher(path string, registry *Registry) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
	}
}

// OnReload registers a listener.
func (w *Watcher) OnReload(listener ReloadListener) {
	w.listenersMu.Lock()
	w.listeners = append(w.listeners, listener)
	w.listenersMu.Unlock()
}

// Start loads the file once and begins watching it. Concurrent calls start a
// single watch loop.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if w.started {
		return nil
	}

	if err := w.Reload(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true

	w.wg.Add(1)
	go w.watchLoop(fw)
	logger.Info(w.ctx, "schema watcher started", "path", w.path)
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	w.lifecycleMu.Lock()
	if !w.started {
		w.lifecycleMu.Unlock()
		return
	}
	cancel := w.cancel
	w.started = false
	w.cancel = nil
	w.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	logger.Info(context.Background(), "schema watcher stopped", "path", w.path)
}

// Reload loads the file into the registry and notifies listeners.
func (w *Watcher) Reload(ctx context.Context) error {
	tables, err := LoadFile(w.path)
	if err == nil {
		err = w.registry.Replace(tables)
	}

	if err != nil {
		logger.Error(ctx, "schema reload failed", "path", w.path, "error", err)
	} else {
		logger.Info(ctx, "schema loaded", "path", w.path, "tables", len(tables))
	}

	w.notify(ctx, tables, err)
	return err
}

func (w *Watcher) watchLoop(fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				logger.Debug(w.ctx, "ignoring schema file event", "event", event.String())
				continue
			}
			if info, err := os.Stat(w.path); err == nil && info.Size() == 0 {
				// truncated ahead of a write; the write event follows
				continue
			}
			_ = w.Reload(w.ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Error(w.ctx, "schema watcher error", "error", err)
		}
	}
}

// notify calls listeners in order, recovering from panics.
func (w *Watcher) notify(ctx context.Context, tables []TableDef, err error) {
	w.listenersMu.RLock()
	defer w.listenersMu.RUnlock()

	for _, listener := range w.listeners {
		func(l ReloadListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "reload listener panic recovered", "panic", r)
				}
			}()
			l(tables, err)
		}(listener)
	}
}
