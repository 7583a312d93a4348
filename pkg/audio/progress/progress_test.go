// ABOUTME: Tests for the progress reporter
// ABOUTME: Verifies monotonic delivery, final value and non-blocking reports
package progress

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) add(pct float64) {
	r.mu.Lock()
	r.values = append(r.values, pct)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

func TestReporterMonotonicEndsAt100(t *testing.T) {
	rec := &recorder{}
	r := New(rec.add)

	for _, v := range []float64{0, 10, 5, 33.3, 33.3, 99.6, 120} {
		r.Report(v)
	}
	r.Complete()

	got := rec.snapshot()
	if len(got) == 0 {
		t.Fatal("expected at least one delivered value")
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("values not monotonic: %v", got)
		}
	}
	if got[len(got)-1] != 100 {
		t.Errorf("final value = %v, want 100", got[len(got)-1])
	}
}

func TestReporterDoesNotBlockOnSlowConsumer(t *testing.T) {
	release := make(chan struct{})
	r := New(func(float64) { <-release })

	start := time.Now()
	for i := 0; i <= 100000; i++ {
		r.Report(float64(i) / 1000)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Report blocked for %v", elapsed)
	}

	close(release)
	r.Close()
}

func TestReporterClampsAndIgnoresAfterClose(t *testing.T) {
	rec := &recorder{}
	r := New(rec.add)

	r.Report(-5)
	r.Close()
	r.Report(50)
	r.Close()

	for _, v := range rec.snapshot() {
		if v != 0 {
			t.Errorf("unexpected value %v", v)
		}
	}
}

func TestReporterNilFunc(t *testing.T) {
	r := New(nil)
	r.Report(50)
	r.Complete()
}
