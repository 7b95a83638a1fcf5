package processors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"constellationFinder/core"
)

func chatServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestOpenAIGenerator(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Orion is in the South.  "}}]}`)
	defer srv.Close()

	gen := NewOpenAIGenerator(NewClientHandle("key", srv.URL), "test-model", 5*time.Second, nil)
	reply, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Orion is in the South." {
		t.Errorf("reply = %q", reply)
	}
}

func TestOpenAIGeneratorFailures(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, `{"id":"1","choices":[]}`)
		defer srv.Close()
		gen := NewOpenAIGenerator(NewClientHandle("key", srv.URL), "m", time.Second, nil)
		if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); !errors.Is(err, core.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := chatServer(t, http.StatusInternalServerError, `{"error":{"message":"down"}}`)
		defer srv.Close()
		gen := NewOpenAIGenerator(NewClientHandle("key", srv.URL), "m", time.Second, nil)
		if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); !errors.Is(err, core.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		gen := NewOpenAIGenerator(NewClientHandle("", "http://127.0.0.1:1"), "m", time.Second, nil)
		if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); !errors.Is(err, core.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("llm-test", BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute})
	calls := 0
	fail := func() (string, error) {
		calls++
		return "", errors.New("boom")
	}
	for i := 0; i < 3; i++ {
		callThrough(b, "llm-test", fail)
	}
	if b.State() != "open" {
		t.Fatalf("state = %s", b.State())
	}
	_, err := callThrough(b, "llm-test", fail)
	if !errors.Is(err, core.ErrUpstreamUnavailable) || calls != 3 {
		t.Errorf("open breaker: err=%v calls=%d", err, calls)
	}

	var nilBreaker *Breaker
	if nilBreaker.State() != "disabled" {
		t.Errorf("nil breaker state = %s", nilBreaker.State())
	}
}
