// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cf_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_provider_calls_total",
			Help: "Calls to remote providers by outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cf_provider_call_duration_seconds",
			Help:    "Remote provider call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cf_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_frames_total",
			Help: "Streaming frames by outcome",
		},
		[]string{"outcome"},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_detections_total",
			Help: "Annotated detections by analysis type",
		},
		[]string{"analysis"},
	)

	NarrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_narrations_total",
			Help: "Sky narration requests by outcome",
		},
		[]string{"outcome"},
	)

	InfoCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cf_info_cache_lookups_total",
			Help: "Constellation info cache lookups",
		},
		[]string{"result"},
	)
)

// Frame outcomes.
const (
	FrameProcessed = "processed"
	FrameThrottled = "throttled"
	FrameBusy      = "busy"
	FrameRejected  = "rejected"
	FrameFailed    = "error"
)

func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordProviderCall 记录一次远程调用
func RecordProviderCall(provider string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ProviderCalls.WithLabelValues(provider, outcome).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func RecordFrame(outcome string) {
	FramesTotal.WithLabelValues(outcome).Inc()
}
