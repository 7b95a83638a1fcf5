package processors

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// FrameThrottle 全局帧节流，最小间隔内只放行一帧
type FrameThrottle struct {
	limiter   *rate.Limiter
	throttled atomic.Int64
}

// NewFrameThrottle returns a throttle admitting one frame per minInterval.
// A zero interval admits every frame.
func NewFrameThrottle(minInterval time.Duration) *FrameThrottle {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &FrameThrottle{limiter: rate.NewLimiter(limit, 1)}
}

// Allow is safe for concurrent use.
func (t *FrameThrottle) Allow() bool {
	if t.limiter.Allow() {
		return true
	}
	t.throttled.Add(1)
	return false
}

// Throttled 被丢弃的帧数
func (t *FrameThrottle) Throttled() int64 { return t.throttled.Load() }

// InferenceGate 限制同时进行推理的帧数，满了直接丢弃不排队
type InferenceGate struct {
	slots    chan struct{}
	rejected atomic.Int64
}

func NewInferenceGate(size int) *InferenceGate {
	if size < 1 {
		size = 1
	}
	return &InferenceGate{slots: make(chan struct{}, size)}
}

// TryAcquire never blocks. Call Release once for every true result.
func (g *InferenceGate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		g.rejected.Add(1)
		return false
	}
}

func (g *InferenceGate) Release() {
	select {
	case <-g.slots:
	default:
	}
}

func (g *InferenceGate) InFlight() int { return len(g.slots) }

func (g *InferenceGate) Capacity() int { return cap(g.slots) }

func (g *InferenceGate) Rejected() int64 { return g.rejected.Load() }
