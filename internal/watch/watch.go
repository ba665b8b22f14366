// Package watch runs the auto-sync daemon: it funnels local file
// changes, a periodic timer, and remote change notifications into
// serialized sync runs. Overlapping triggers are dropped, never queued;
// a sync run always covers every category, so one run after the last
// trigger is enough.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/indigoapp/indigo-sync/internal/appdata"
	"github.com/indigoapp/indigo-sync/internal/models"
)

const (
	// DefaultInterval is the periodic sync interval when none is
	// configured.
	DefaultInterval = 5 * time.Minute

	// debounceTick is how often pending file events are checked.
	debounceTick = 500 * time.Millisecond

	// debounceQuiet is how long the data dir must stay quiet before a
	// file change triggers a sync, batching rapid successive writes.
	debounceQuiet = 2 * time.Second
)

// Daemon waits for reasons to sync and runs them one at a time.
type Daemon struct {
	dir           string
	interval      time.Duration
	notifications <-chan struct{}
	runSync       func(ctx context.Context)
	logger        *slog.Logger

	// running serializes sync runs. Acquired with TryLock: a trigger
	// arriving mid-run is dropped.
	running sync.Mutex
}

// New creates the auto-sync daemon. notifications may be nil when no
// realtime subscription is configured; runSync is invoked serially and
// must itself tolerate overlapping data writes.
func New(data *appdata.Store, interval time.Duration, notifications <-chan struct{}, runSync func(ctx context.Context), logger *slog.Logger) *Daemon {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Daemon{
		dir:           data.Dir(),
		interval:      interval,
		notifications: notifications,
		runSync:       runSync,
		logger:        logger,
	}
}

// watchedFile reports whether a path is one of the files whose changes
// should trigger a sync. Editor temp files and the like are ignored.
func watchedFile(path string) bool {
	base := filepath.Base(path)

	if base == appdata.PersonaFileName {
		return true
	}

	for _, cat := range models.Categories() {
		if base == string(cat)+".json" {
			return true
		}
	}

	return false
}

// Run blocks until ctx is cancelled, triggering syncs on data dir
// changes (debounced), on the periodic interval, and on remote change
// notifications. A sync pulling remote data rewrites local files and
// re-triggers itself once; the hash comparison makes that follow-up run
// a no-op.
func (d *Daemon) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.dir); err != nil {
		return fmt.Errorf("watching data dir: %w", err)
	}

	d.logger.Info("auto-sync daemon started",
		slog.String("dir", d.dir),
		slog.Duration("interval", d.interval),
	)

	// lastChange is the zero time when no file change is pending.
	var lastChange time.Time

	debounce := time.NewTicker(debounceTick)
	defer debounce.Stop()

	periodic := time.NewTicker(d.interval)
	defer periodic.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if !watchedFile(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				lastChange = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			d.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-debounce.C:
			if lastChange.IsZero() || time.Since(lastChange) < debounceQuiet {
				continue
			}

			lastChange = time.Time{}
			d.trigger(ctx, "file change")

		case <-periodic.C:
			d.trigger(ctx, "interval")

		case _, ok := <-d.notifications:
			if !ok {
				// Realtime subscription gone; interval and file
				// triggers keep the daemon useful.
				d.notifications = nil

				continue
			}

			d.trigger(ctx, "remote change")
		}
	}
}

// trigger starts a sync run unless one is already in flight.
func (d *Daemon) trigger(ctx context.Context, reason string) {
	if !d.running.TryLock() {
		d.logger.Debug("sync already running, trigger dropped", slog.String("reason", reason))

		return
	}

	d.logger.Info("sync triggered", slog.String("reason", reason))

	go func() {
		defer d.running.Unlock()
		d.runSync(ctx)
	}()
}
