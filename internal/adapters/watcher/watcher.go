package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/zerr"
)

const debounceWindow = 250 * time.Millisecond

// scriptWatcher watches a single script file for changes and invokes a
// callback once the file has stopped changing. It watches the containing
// directory rather than the file itself because most editors save via
// rename, which replaces the watched inode.
type scriptWatcher struct {
	logger ports.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a script watcher.
func New(logger ports.Logger) ports.Watcher {
	return &scriptWatcher{logger: logger}
}

// Start begins watching path. onChange is invoked from a background
// goroutine after each debounced burst of file system events touching path.
// Start returns an error if the watcher is already running or the
// containing directory cannot be watched.
func (w *scriptWatcher) Start(ctx context.Context, path string, onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return zerr.New("watcher already started")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return zerr.Wrap(err, "resolving watch path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return zerr.Wrap(err, "creating file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return zerr.With(zerr.Wrap(err, "watching directory"), "path", abs)
	}

	ctx, cancel := context.WithCancel(ctx)

	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(ctx, abs, onChange)
	return nil
}

func (w *scriptWatcher) run(ctx context.Context, target string, onChange func()) {
	defer close(w.done)

	deb := NewDebouncer(debounceWindow, onChange)
	defer deb.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev, target) {
				continue
			}
			w.logger.Debug("script changed", "path", ev.Name, "op", ev.Op.String())
			deb.Trigger()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// relevant reports whether ev concerns the watched script.
func (w *scriptWatcher) relevant(ev fsnotify.Event, target string) bool {
	if filepath.Clean(ev.Name) != target {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *scriptWatcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, fsw, done := w.cancel, w.fsw, w.done
	w.started = false
	w.cancel = nil
	w.fsw = nil
	w.done = nil
	w.mu.Unlock()

	cancel()
	err := fsw.Close()
	<-done
	if err != nil {
		return zerr.Wrap(err, "closing file watcher")
	}
	return nil
}
