package inventory

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/quay/zlog"

	"github.com/packserv/packserv/auth"
)

// DebounceWindow is how long filesystem events are coalesced before a
// rescan is attempted.
const DebounceWindow = 5 * time.Second

// Watcher observes the package directory and refreshes the published
// auth configuration and inventory snapshot when relevant files
// change.
//
// Events are debounced: the first qualifying event arms a timer and
// further events within the window are absorbed. When the timer fires
// the watcher tries to take the scan lock; if a scan is already in
// flight the trigger is simply dropped. No queue of pending rescans is
// kept.
type Watcher struct {
	dir      string
	authPath string
	window   time.Duration
	state    *State

	fsw      *fsnotify.Watcher
	scanning sync.Mutex

	mu      sync.Mutex
	pending bool
	// dirs is the directory watch list, also guarded by mu: the event
	// loop and the reload goroutine both touch it.
	dirs map[string]bool
}

// NewWatcher builds a watcher for dir, recursively registering every
// directory below it. A window of zero selects DebounceWindow.
func NewWatcher(ctx context.Context, dir string, state *State, window time.Duration) (*Watcher, error) {
	if window == 0 {
		window = DebounceWindow
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		authPath: filepath.Join(dir, AuthFile),
		window:   window,
		state:    state,
		fsw:      fsw,
		dirs:     make(map[string]bool),
	}
	if err := w.syncWatches(ctx); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// syncWatches registers any directories not yet watched.
func (w *Watcher) syncWatches(ctx context.Context) error {
	return filepath.WalkDir(w.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("path", p).Msg("walk error")
			return nil
		}
		if !d.IsDir() || w.watched(p) {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			zlog.Warn(ctx).Err(err).Str("path", p).Msg("failed to watch directory")
			return nil
		}
		w.setWatched(p, true)
		return nil
	})
}

func (w *Watcher) watched(p string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[p]
}

func (w *Watcher) setWatched(p string, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.dirs[p] = true
	} else {
		delete(w.dirs, p)
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run dispatches filesystem events until ctx is canceled or the event
// stream closes.
func (w *Watcher) Run(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "inventory/Watcher.Run")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			zlog.Error(ctx).Err(err).Msg("watch error")
			// Dropped events mean changes may have been missed;
			// force a rescan.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.schedule(ctx)
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ctx, ev) {
				w.schedule(ctx)
			}
		}
	}
}

// pathMatches reports whether the path is a package archive or the
// auth configuration.
func (w *Watcher) pathMatches(p string) bool {
	return filepath.Ext(p) == ".tar" || p == w.authPath
}

// relevant classifies an event, maintaining the directory watch list
// on the way.
func (w *Watcher) relevant(ctx context.Context, ev fsnotify.Event) bool {
	switch {
	case ev.Has(fsnotify.Create):
		if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
			// A new directory is assumed to hold package files.
			if err := w.fsw.Add(ev.Name); err != nil {
				zlog.Warn(ctx).Err(err).Str("path", ev.Name).Msg("failed to watch directory")
			} else {
				w.setWatched(ev.Name, true)
			}
			return true
		}
		return w.pathMatches(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.watched(ev.Name) {
			w.setWatched(ev.Name, false)
			return true
		}
		return w.pathMatches(ev.Name)
	case ev.Has(fsnotify.Write):
		return w.pathMatches(ev.Name)
	case ev.Has(fsnotify.Chmod):
		if w.pathMatches(ev.Name) || w.watched(ev.Name) {
			return true
		}
		fi, err := os.Lstat(ev.Name)
		return err == nil && fi.IsDir()
	}
	zlog.Debug(ctx).Stringer("event", ev).Msg("unhandled event")
	return false
}

// schedule arms the debounce timer; events during the window coalesce
// into the already armed trigger.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending {
		return
	}
	w.pending = true
	time.AfterFunc(w.window, func() {
		w.mu.Lock()
		w.pending = false
		w.mu.Unlock()
		w.trigger(ctx)
	})
}

// trigger runs a reload unless one is already in flight.
func (w *Watcher) trigger(ctx context.Context) {
	if !w.scanning.TryLock() {
		zlog.Debug(ctx).Msg("a scan is already in progress")
		rescanTriggers.WithLabelValues("dropped").Inc()
		return
	}
	rescanTriggers.WithLabelValues("scanned").Inc()
	go func() {
		defer w.scanning.Unlock()
		w.Reload(ctx)
	}()
}

// Reload re-reads the auth configuration and re-scans the package
// directory, publishing each on success. Failures keep the previously
// published values.
func (w *Watcher) Reload(ctx context.Context) {
	zlog.Info(ctx).Msg("reading auth configuration")
	cfg, err := auth.Load(w.authPath)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to read auth configuration")
	} else {
		w.state.SetAuth(cfg)
	}

	zlog.Info(ctx).Msg("re-scanning package directory")
	snap, err := Scan(ctx, w.dir)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to scan package directory")
		return
	}
	w.state.SetSnapshot(snap)
	if err := w.syncWatches(ctx); err != nil {
		zlog.Warn(ctx).Err(err).Msg("failed to refresh directory watches")
	}
}
