package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"switchyard/pkg/logging"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives the configuration reloaded after a change, or the
// error that prevented loading it.
type ReloadFunc func(cfg Config, err error)

// Watcher reloads the configuration of a directory when config.yaml or a
// route file changes.
//
// It uses fsnotify to watch the directory and its routes subdirectory.
// Bursts of events are collapsed into a single reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for configDir. A zero debounce means
// DefaultDebounce.
func NewWatcher(configDir string, debounce time.Duration, onReload ReloadFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: configDir, debounce: debounce, onReload: onReload}
}

// Start begins watching. It creates the routes subdirectory when missing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	routesDir := filepath.Join(w.dir, RoutesDir)
	if err := os.MkdirAll(routesDir, 0755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range []string{w.dir, routesDir} {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true
	w.wg.Add(1)
	go w.processEvents(ctx, watcher, w.stopCh)

	logging.Info("ConfigWatcher", "Started watching %s for configuration changes", w.dir)
	return nil
}

// Stop stops watching and waits for a reload in progress.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
	watcher := w.watcher
	w.mu.Unlock()

	_ = watcher.Close()
	w.wg.Wait()
	logging.Info("ConfigWatcher", "Stopped watching %s", w.dir)
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				logging.Debug("ConfigWatcher", "Detected %s on %s", event.Op, event.Name)
				w.schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "Filesystem watcher error")
		}
	}
}

// relevant reports whether event touches config.yaml or a route file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	if name == filepath.Clean(FilePath(w.dir)) {
		return true
	}
	if filepath.Dir(name) != filepath.Join(filepath.Clean(w.dir), RoutesDir) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	defer w.wg.Done()
	cfg, err := LoadAndValidate(w.dir)
	if err != nil {
		logging.Warn("ConfigWatcher", "Reloading configuration from %s failed: %v", w.dir, err)
	} else {
		logging.Info("ConfigWatcher", "Reloaded configuration from %s (%d routes)", w.dir, len(cfg.Routes))
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
}
