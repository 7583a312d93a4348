// ABOUTME: Tests for the worker pool
// ABOUTME: Covers execution, queue limits, panics and drain
package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(4, 16, nil)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		if !p.Submit(func() { ran.Add(1) }) {
			t.Fatalf("Submit(%d) rejected", i)
		}
	}

	p.StopAccepting()
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := ran.Load(); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := New(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	p.Submit(func() {
		close(started)
		<-release
	})
	<-started

	if !p.Submit(func() {}) {
		t.Fatal("second task should fit in the queue")
	}
	if p.Submit(func() {}) {
		t.Error("third task should be rejected")
	}

	close(release)
	p.StopAccepting()
	p.Drain(context.Background())
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := New(1, 4, nil)
	p.StopAccepting()
	if p.Submit(func() {}) {
		t.Error("Submit after StopAccepting should fail")
	}
	p.Drain(context.Background())
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := New(1, 4, nil)
	done := make(chan struct{})

	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	p.StopAccepting()
	p.Drain(context.Background())
}

func TestPoolDrainTimeout(t *testing.T) {
	p := New(1, 1, nil)
	release := make(chan struct{})
	defer close(release)

	p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p.StopAccepting()
	if err := p.Drain(ctx); err == nil {
		t.Error("Drain() expected timeout error")
	}
}
