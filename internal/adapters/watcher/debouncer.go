// Package watcher implements script change detection for session reload.
package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid file system events into one reload trigger.
// Editors typically produce several write/rename events per save; firing a
// reload for each would thrash the cache.
type Debouncer struct {
	mu       sync.Mutex
	pending  bool
	timer    *time.Timer
	window   time.Duration
	callback func()
}

// NewDebouncer creates a debouncer with the given quiet window and callback.
func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger notes an event and (re)starts the quiet window. The callback runs
// once the window elapses without further triggers.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire is called when the debounce window expires.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	cb := d.callback
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Flush fires immediately if an event is pending, blocking until the
// callback completes. Used on shutdown so a queued reload is not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// Timer already fired; let it complete rather than firing twice.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	pending := d.pending
	d.pending = false
	cb := d.callback
	d.mu.Unlock()

	if pending && cb != nil {
		cb()
	}
}
