package runloop

import (
	"sync"
	"time"
)

// Debouncer delays a tick signal until a quiet period has passed. The
// server loop triggers it on every queue wake and drains when C fires.
type Debouncer struct {
	delay time.Duration
	timer *time.Timer
	mu    sync.Mutex
	c     chan struct{}
}

// NewDebouncer creates a debouncer with the specified quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		c:     make(chan struct{}, 1),
	}
}

// C delivers one value per quiet period that followed a Trigger.
func (d *Debouncer) C() <-chan struct{} {
	return d.c
}

// Trigger starts or restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.delay <= 0 {
		d.fire()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fire()
	})
}

// Cancel stops a pending quiet period without firing.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush fires immediately if a quiet period is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if pending {
		d.fire()
	}
}

func (d *Debouncer) fire() {
	select {
	case d.c <- struct{}{}:
	default:
	}
}
