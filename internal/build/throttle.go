package build

import (
	"sync"
	"time"
)

// Throttle passes values to a function at most once per interval.
//
// The first value after a quiet interval is passed at once. Values that
// arrive sooner are coalesced and only the latest one is passed when the
// interval ends.
type Throttle[T any] struct {
	interval time.Duration
	fn       func(T)

	mu         sync.Mutex // held while fn runs
	last       time.Time
	pending    T
	hasPending bool
	timer      *time.Timer
	gen        uint64
	stopped    bool
}

// NewThrottle returns a throttle that calls fn.
func NewThrottle[T any](interval time.Duration, fn func(T)) *Throttle[T] {
	return &Throttle[T]{interval: interval, fn: fn}
}

// Call offers v.
func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	now := time.Now()
	if t.timer == nil && now.Sub(t.last) >= t.interval {
		t.last = now
		t.fn(v)
		return
	}

	t.pending, t.hasPending = v, true
	if t.timer == nil {
		gen := t.gen
		t.timer = time.AfterFunc(t.interval-now.Sub(t.last), func() { t.fire(gen) })
	}
}

func (t *Throttle[T]) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || gen != t.gen {
		return
	}
	t.timer = nil
	t.emitPending()
}

// Flush passes the pending value, if any, before it returns.
func (t *Throttle[T]) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.cancelTimer()
	t.emitPending()
}

// Stop drops the pending value. Later calls do nothing.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.cancelTimer()
	var zero T
	t.pending, t.hasPending = zero, false
}

func (t *Throttle[T]) cancelTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

func (t *Throttle[T]) emitPending() {
	if !t.hasPending {
		return
	}
	v := t.pending
	var zero T
	t.pending, t.hasPending = zero, false
	t.last = time.Now()
	t.fn(v)
}
