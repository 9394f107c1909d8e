package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
)

const watchDebounce = 100 * time.Millisecond

// Watcher notices change markers written by other processes and publishes
// config_changed with origin "external". File-backed persistent scopes are
// watched with fsnotify; every other backend is polled.
type Watcher struct {
	store    *CredentialStore
	bus      *events.EventBus
	logger   *logging.Logger
	interval time.Duration

	mu       sync.Mutex
	seen     string
	debounce *time.Timer
}

// NewWatcher creates a watcher. interval is the polling period for
// backends without file notifications.
func NewWatcher(store *CredentialStore, bus *events.EventBus, logger *logging.Logger, interval time.Duration) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		store:    store,
		bus:      bus,
		logger:   logger.WithScope("watcher"),
		interval: interval,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.seen = w.store.ChangeMarker(ctx)
	w.mu.Unlock()

	if ps, ok := w.store.Persistent().(*FileScope); ok {
		err := w.watchFile(ctx, ps.Path())
		if err == nil || ctx.Err() != nil {
			return nil
		}
		w.logger.Debug("file notifications unavailable, polling instead", "error", err)
	}
	w.poll(ctx)
	return nil
}

func (w *Watcher) watchFile(ctx context.Context, path string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Atomic writes replace the file, so the directory is what stays put.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			w.stopDebounce()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.scheduleCheck(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Debug("watch error", "error", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

func (w *Watcher) scheduleCheck(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(watchDebounce, func() {
		w.Check(ctx)
	})
}

func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

// Check compares the stored marker with the last one seen and publishes
// when another process moved it. It reports whether an event was published.
func (w *Watcher) Check(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	marker := w.store.ChangeMarker(ctx)

	w.mu.Lock()
	changed := marker != w.seen
	w.seen = marker
	w.mu.Unlock()

	if !changed || marker == "" || marker == w.store.LastWrittenMarker() {
		return false
	}
	theme := string(w.store.ReadConfig(ctx).Preferences.Theme)
	w.logger.Debug("settings changed by another process", "marker", marker)
	metrics.ExternalChangesTotal.Inc()
	if w.bus != nil {
		w.bus.Publish(events.NewConfigChangedEvent("", marker, events.OriginExternal, theme))
	}
	return true
}
