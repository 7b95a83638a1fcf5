package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordProviderCall(t *testing.T) {
	before := testutil.ToFloat64(ProviderCalls.WithLabelValues("llm-test", "failure"))
	RecordProviderCall("llm-test", 20*time.Millisecond, errors.New("timeout"))
	RecordProviderCall("llm-test", 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(ProviderCalls.WithLabelValues("llm-test", "failure")); got != before+1 {
		t.Errorf("failure count = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(ProviderCalls.WithLabelValues("llm-test", "success")); got < 1 {
		t.Errorf("success count = %v", got)
	}
}

func TestRecordFrame(t *testing.T) {
	before := testutil.ToFloat64(FramesTotal.WithLabelValues(FrameThrottled))
	RecordFrame(FrameThrottled)
	if got := testutil.ToFloat64(FramesTotal.WithLabelValues(FrameThrottled)); got != before+1 {
		t.Errorf("throttled frames = %v, want %v", got, before+1)
	}
}
