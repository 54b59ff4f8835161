package debounce

import (
	"sync"
	"time"

	"storefront-sync/internal/observability"
)

// DefaultDelay is the debounce window applied when none is configured.
const DefaultDelay = 500 * time.Millisecond

// Debouncer coalesces a burst of input events into one delayed callback
// carrying the most recent value. For any burst of events each separated by
// less than the delay, the callback fires exactly once.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func(value string)
	timer   *time.Timer
	pending string
	seq     uint64
	stopped bool
}

// NewDebouncer creates a debouncer. fire runs on a timer goroutine with no
// lock held.
func NewDebouncer(delay time.Duration, fire func(value string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay: delay,
		fire:  fire,
	}
}

// OnInput records a new value and restarts the delay. Any previously
// scheduled flush is cancelled.
func (d *Debouncer) OnInput(value string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
		observability.DebounceSuppressedTotal.Inc()
	}

	d.pending = value
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.flush(seq)
	})
	d.mu.Unlock()
}

// flush delivers the pending value unless a newer input superseded seq.
func (d *Debouncer) flush(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.timer = nil
	d.mu.Unlock()

	observability.DebounceFlushesTotal.Inc()
	d.fire(value)
}

// Flush fires the pending value immediately, if any flush is scheduled.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	value := d.pending
	d.seq++
	d.mu.Unlock()

	observability.DebounceFlushesTotal.Inc()
	d.fire(value)
}

// Stop cancels any scheduled flush. Must be called when the owning context
// is torn down so no callback fires against abandoned state.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
