package extensions

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/pith-agent/pith/internal/logging"
)

// Watcher debounces filesystem changes under the extension directories
// and triggers a registry refresh once activity settles.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	registry   *Registry
	debounceMs int
	stopCh     chan struct{}

	mu           sync.Mutex
	pendingTimer *time.Timer
}

// NewWatcher builds a watcher that refreshes reg on change, debounced by
// debounceMs (0 defaults to 500ms).
func NewWatcher(reg *Registry, dirs []string, debounceMs int) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounceMs <= 0 {
		debounceMs = 500
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fsWatcher.Add(dir); err != nil {
			L_warn("extensions: failed to watch directory", "path", dir, "error", err)
		}
	}

	return &Watcher{
		fsWatcher:  fsWatcher,
		registry:   reg,
		debounceMs: debounceMs,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.triggerRefresh()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			L_warn("extensions: watcher error", "error", err)
		}
	}
}

// triggerRefresh schedules a debounced registry refresh.
func (w *Watcher) triggerRefresh() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(time.Duration(w.debounceMs)*time.Millisecond, func() {
		w.mu.Lock()
		w.pendingTimer = nil
		w.mu.Unlock()

		if err := w.registry.Refresh(); err != nil {
			L_warn("extensions: refresh after change failed", "error", err)
		}
	})
}

// Stop stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.mu.Unlock()

	return w.fsWatcher.Close()
}
