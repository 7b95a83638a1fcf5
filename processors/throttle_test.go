package processors

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameThrottle(t *testing.T) {
	th := NewFrameThrottle(time.Hour)
	if !th.Allow() {
		t.Fatal("first frame should pass")
	}
	if th.Allow() {
		t.Fatal("second frame inside the interval should be throttled")
	}
	if th.Throttled() != 1 {
		t.Errorf("throttled = %d", th.Throttled())
	}

	open := NewFrameThrottle(0)
	for i := 0; i < 10; i++ {
		if !open.Allow() {
			t.Fatalf("zero interval throttled frame %d", i)
		}
	}
}

func TestFrameThrottleConcurrent(t *testing.T) {
	th := NewFrameThrottle(time.Hour)
	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.Allow() {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()
	if passed.Load() != 1 {
		t.Errorf("expected exactly one frame through, got %d", passed.Load())
	}
}

func TestInferenceGate(t *testing.T) {
	g := NewInferenceGate(2)
	if !g.TryAcquire() || !g.TryAcquire() {
		t.Fatal("gate should admit up to capacity")
	}
	if g.TryAcquire() {
		t.Fatal("gate admitted beyond capacity")
	}
	if g.InFlight() != 2 || g.Rejected() != 1 || g.Capacity() != 2 {
		t.Errorf("inflight=%d rejected=%d cap=%d", g.InFlight(), g.Rejected(), g.Capacity())
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("released slot not reusable")
	}
}
