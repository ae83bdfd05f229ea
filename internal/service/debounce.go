package service

import (
	"sync"
	"time"
)

// Debouncer is the shared debounced-task abstraction: Trigger cancels
// and reschedules the pending run, and a single in-flight flag makes
// overlapping runs coalesce into one trailing re-run instead of
// interleaving.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu       sync.Mutex
	timer    *time.Timer
	inflight bool
	pending  bool
	stopped  bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn after the debounce delay, cancelling any timer
// already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.inflight {
		// A run is in progress; remember to go once more when it ends.
		d.pending = true
		d.mu.Unlock()
		return
	}
	d.inflight = true
	d.mu.Unlock()

	d.fn()

	d.mu.Lock()
	d.inflight = false
	rerun := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if rerun {
		go d.fire()
	}
}

// Stop cancels any pending run. An in-flight run finishes.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
