package observer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChecklistWatcher signals when the checklist file is written, created or
// renamed into place. Rapid successive changes are debounced into one signal.
type ChecklistWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	logger   *slog.Logger
	debounce time.Duration
	changes  chan struct{}

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChecklistWatcher watches the directory containing path. Editors often
// replace files rather than writing them, so the parent directory is watched.
func NewChecklistWatcher(path string, logger *slog.Logger) (*ChecklistWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ChecklistWatcher{
		watcher:  watcher,
		path:     abs,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Changes delivers one value per debounced batch of changes.
// Signals are coalesced while nobody is receiving.
func (w *ChecklistWatcher) Changes() <-chan struct{} {
	return w.changes
}

// SetDebounce sets the debounce duration for batching file changes
func (w *ChecklistWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for file changes
func (w *ChecklistWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("checklist watcher error", "error", err)
			}
		}
	}()
}

// Stop stops watching. It is safe to call more than once.
func (w *ChecklistWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-w.done
	}
	w.watcher.Close()
}

func (w *ChecklistWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *ChecklistWatcher) flush() {
	w.logger.Debug("checklist changed", "path", w.path)
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
