// ABOUTME: Asynchronous, coalescing progress delivery for transcode jobs
// ABOUTME: Feed loops report percentages without ever blocking on the consumer
package progress

import "sync"

// Func receives a completion percentage in [0, 100]
type Func func(percent float64)

// Reporter delivers percentages to a Func on its own goroutine. Only the
// latest value is kept when the consumer falls behind. Delivered values are
// non-decreasing.
type Reporter struct {
	fn Func

	mu      sync.Mutex
	pending float64
	has     bool
	high    float64
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New starts a Reporter. A nil fn yields a Reporter that discards values.
func New(fn Func) *Reporter {
	r := &Reporter{
		fn:   fn,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// Report records pct for delivery. Values are clamped to [0, 100] and values
// lower than a previous report are dropped.
func (r *Reporter) Report(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	r.mu.Lock()
	if r.closed || pct < r.high {
		r.mu.Unlock()
		return
	}
	r.high = pct
	r.pending = pct
	r.has = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Complete reports 100 and closes the Reporter, so the last delivered value
// is exactly 100.
func (r *Reporter) Complete() {
	r.Report(100)
	r.Close()
}

// Close delivers any pending value, stops the delivery goroutine and waits
// for it to exit. Safe to call more than once.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	for {
		select {
		case <-r.wake:
			r.deliver()
		case <-r.stop:
			r.deliver()
			return
		}
	}
}

func (r *Reporter) deliver() {
	r.mu.Lock()
	pct, ok := r.pending, r.has
	r.has = false
	r.mu.Unlock()

	if ok && r.fn != nil {
		r.fn(pct)
	}
}
