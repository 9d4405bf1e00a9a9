// Package watch triggers synchronization when calendar snapshots land in
// the snapshot directory. Rapid bursts of file events (one fetch rewrites
// every person's snapshot) are debounced into a single cycle.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler is invoked, debounced, after snapshot files change.
type Handler func(ctx context.Context)

// Watcher observes one snapshot directory for *.json / *.txt writes.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  Handler
	log      *zap.Logger

	fsw *fsnotify.Watcher
}

// New creates a watcher over dir. The directory is created if missing so
// watching can start before the first fetch.
func New(dir string, debounce time.Duration, handler Handler, log *zap.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		log:      log,
		fsw:      fsw,
	}, nil
}

// Run watches until ctx is cancelled. The handler fires once per quiet
// period after the last relevant change. Watch errors are logged, not
// fatal; the kernel watch survives them.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	defer w.fsw.Close()

	w.log.Info("watching snapshot directory", zap.String("dir", w.dir))

	// The timer is armed on the first relevant event and re-armed on each
	// subsequent one, firing only after the burst has settled.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("snapshot changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			armed = false
			w.handler(ctx)
		}
	}
}

// relevant filters for snapshot writes: JSON/TXT files created or written.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".json" || ext == ".txt"
}
