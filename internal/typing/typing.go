// Package typing implements the typing-indicator debounce used by chat
// clients: the first keystroke announces typing, and the announcement is
// withdrawn after a quiet period or when the composer is abandoned.
package typing

import (
	"sync"
	"time"
)

const DefaultIdle = time.Second

type Debouncer struct {
	idle time.Duration
	emit func(typing bool)

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	// gen identifies the currently armed timer. A timer callback that
	// observes a different gen was superseded and does nothing.
	gen uint64
}

// New returns a debouncer that calls emit(true) when typing starts and
// emit(false) when it stops. emit is called with the debouncer locked and
// must not call back into it.
func New(idle time.Duration, emit func(typing bool)) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{
		idle: idle,
		emit: emit,
	}
}

// Keystroke records composer activity.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.typing {
		d.typing = true
		d.emit(true)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.idle, func() {
		d.expire(gen)
	})
}

// Stop withdraws the typing announcement immediately (message sent,
// composer blurred, client shutting down).
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.stopLocked()
}

func (d *Debouncer) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return
	}
	d.timer = nil
	d.stopLocked()
}

func (d *Debouncer) stopLocked() {
	if !d.typing {
		return
	}
	d.typing = false
	d.emit(false)
}
