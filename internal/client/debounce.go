package client

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key into a single delayed
// action. A new trigger for a key resets that key's timer, so only the
// last action of a burst runs.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger schedules fn to run after the debounce delay, replacing any
// action already pending for the key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	d.pending[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, key)
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			fn()
		}
	})
}

// Flush cancels the pending action for a key without running it.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[key]; ok {
		t.Stop()
		delete(d.pending, key)
	}
}

// Close cancels everything pending; further triggers are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
}
