package processors

import (
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/metrics"
)

// Breaker 远程调用熔断器，连续失败 5 次后打开，30 秒后半开
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerSettings overrides the defaults; zero values keep them.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreaker(name string, s BreakerSettings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return &Breaker{cb: cb, name: name}
}

func (b *Breaker) Name() string { return b.name }

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// callThrough 经过熔断器执行 fn，并记录 provider 指标
// A rejected call (open or half-open saturated) is reported as ErrUpstreamUnavailable.
func callThrough[T any](b *Breaker, provider string, fn func() (T, error)) (T, error) {
	start := time.Now()
	var zero T

	if b == nil {
		v, err := fn()
		metrics.RecordProviderCall(provider, time.Since(start), err)
		return v, err
	}

	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.ProviderCalls.WithLabelValues(provider, "rejected").Inc()
		return zero, fmt.Errorf("%s circuit open: %w", provider, core.ErrUpstreamUnavailable)
	}
	metrics.RecordProviderCall(provider, time.Since(start), err)
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
