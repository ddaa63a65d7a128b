package util

import (
	"sync"
	"time"
)

// Debouncer runs action once, delay after the first trigger of a burst.
// Triggers while a timer is pending join it without moving its deadline, so
// a steady stream of triggers still fires every delay. At most one timer is
// pending at any moment.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	delay   time.Duration
	action  func()
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

func NewDebouncer(delay time.Duration, action func()) *Debouncer {
	return &Debouncer{delay: delay, action: action}
}

// Trigger arms the timer unless one is already pending. Triggers after Stop
// are ignored.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.timer != nil {
		return
	}

	d.seq++
	seq := d.seq

	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.action()
	})
}

// Pending reports whether a timer is armed and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending action, refuses further triggers and waits for
// an action already in flight.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
	d.seq++
	d.mu.Unlock()
	d.wg.Wait()
}
