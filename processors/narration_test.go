package processors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"constellationFinder/core"
	"constellationFinder/storage"
)

func ptr(f float64) *float64 { return &f }

func fixedClock() time.Time {
	return time.Date(2024, 3, 15, 21, 30, 0, 0, time.UTC)
}

func TestBuildNarrationPrompt(t *testing.T) {
	p := BuildNarrationPrompt(40.7128, -74.006, fixedClock())
	for _, want := range []string{
		"Latitude 40.7128, Longitude -74.0060",
		"Date: 2024-03-15",
		"Time: 21:30 (21:00)",
		"compass direction",
		"plain text",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestSaveLocationValidation(t *testing.T) {
	svc := NewNarrationService(storage.NewMemoryStore(), &MockGenerator{})
	ctx := context.Background()

	tests := []struct {
		name    string
		req     core.SaveLocationRequest
		wantMsg string
	}{
		{"missing latitude", core.SaveLocationRequest{Longitude: ptr(10)}, "Latitude and longitude are required"},
		{"missing longitude", core.SaveLocationRequest{Latitude: ptr(10)}, "Latitude and longitude are required"},
		{"latitude out of range", core.SaveLocationRequest{Latitude: ptr(91), Longitude: ptr(0)}, "latitude must be between -90 and 90"},
		{"longitude out of range", core.SaveLocationRequest{Latitude: ptr(0), Longitude: ptr(-181)}, "longitude must be between -180 and 180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SaveLocation(ctx, "", tt.req)
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := core.UserMessage(err, ""); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSaveLocationAcceptsZeroCoordinates(t *testing.T) {
	svc := NewNarrationService(storage.NewMemoryStore(), &MockGenerator{})
	loc, err := svc.SaveLocation(context.Background(), " alice ", core.SaveLocationRequest{Latitude: ptr(0), Longitude: ptr(0)})
	if err != nil {
		t.Fatalf("SaveLocation: %v", err)
	}
	if loc.ID <= 0 {
		t.Errorf("expected positive id, got %d", loc.ID)
	}
	if loc.Owner != "alice" {
		t.Errorf("owner = %q", loc.Owner)
	}
}

func TestFindConstellations(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := &MockGenerator{}
	svc := NewNarrationService(store, gen, WithClock(fixedClock))
	ctx := context.Background()

	loc, err := svc.SaveLocation(ctx, "", core.SaveLocationRequest{Latitude: ptr(40.7128), Longitude: ptr(-74.006)})
	if err != nil {
		t.Fatalf("SaveLocation: %v", err)
	}

	resp, err := svc.FindConstellations(ctx, loc.ID)
	if err != nil {
		t.Fatalf("FindConstellations: %v", err)
	}
	if resp.Status != "success" || resp.QueryID == 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	wantNames := []string{"Orion", "Ursa Major", "Cassiopeia", "Cygnus", "Lyra"}
	if strings.Join(resp.VisibleConstellations, ",") != strings.Join(wantNames, ",") {
		t.Errorf("names = %v, want %v", resp.VisibleConstellations, wantNames)
	}
	wantDirs := map[string]string{
		"Orion":      "South",
		"Ursa Major": "North",
		"Cassiopeia": "Northeast",
		"Cygnus":     "Overhead",
		"Lyra":       "West",
	}
	for name, dir := range wantDirs {
		if resp.CompassDirections[name] != dir {
			t.Errorf("direction[%s] = %q, want %q", name, resp.CompassDirections[name], dir)
		}
	}

	if last := gen.LastRequest(); last == nil || !strings.Contains(last.Prompt, "Date: 2024-03-15") {
		t.Errorf("prompt not built from location and clock: %+v", last)
	}

	history, err := svc.ListNarrations(ctx, loc.ID, 10)
	if err != nil {
		t.Fatalf("ListNarrations: %v", err)
	}
	if len(history) != 1 || history[0].ID != resp.QueryID {
		t.Fatalf("expected one stored narration, got %+v", history)
	}
	if history[0].Response != resp.Response {
		t.Errorf("stored response differs from returned response")
	}
}

func TestFindConstellationsErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		svc := NewNarrationService(storage.NewMemoryStore(), &MockGenerator{})
		_, err := svc.FindConstellations(ctx, 0)
		if core.UserMessage(err, "") != "Location ID is required" {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown location skips provider", func(t *testing.T) {
		gen := &MockGenerator{}
		svc := NewNarrationService(storage.NewMemoryStore(), gen)
		_, err := svc.FindConstellations(ctx, 42)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if gen.Calls() != 0 {
			t.Errorf("generator should not be called, got %d calls", gen.Calls())
		}
	})

	t.Run("provider failure persists nothing", func(t *testing.T) {
		store := storage.NewMemoryStore()
		gen := &MockGenerator{Err: errors.New("boom")}
		svc := NewNarrationService(store, gen)
		loc, _ := svc.SaveLocation(ctx, "", core.SaveLocationRequest{Latitude: ptr(1), Longitude: ptr(2)})

		_, err := svc.FindConstellations(ctx, loc.ID)
		if !errors.Is(err, core.ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
		qs, _ := store.ListNarrations(ctx, 0, 10)
		if len(qs) != 0 {
			t.Errorf("expected no narrations, got %d", len(qs))
		}
	})
}

type vectorMemoryStore struct {
	*storage.MemoryStore
	mu      sync.Mutex
	vectors map[int64][]float32
}

func (s *vectorMemoryStore) SaveNarrationEmbedding(_ context.Context, id int64, v []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = v
	return nil
}

func (s *vectorMemoryStore) SimilarNarrations(context.Context, int64, int) ([]core.SimilarNarration, error) {
	return []core.SimilarNarration{}, nil
}

type stubEmbedder struct {
	err error
}

func (e stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestFindConstellationsEmbedsNarration(t *testing.T) {
	ctx := context.Background()
	store := &vectorMemoryStore{MemoryStore: storage.NewMemoryStore(), vectors: map[int64][]float32{}}

	svc := NewNarrationService(store, &MockGenerator{}, WithEmbedder(stubEmbedder{}))
	loc, _ := svc.SaveLocation(ctx, "", core.SaveLocationRequest{Latitude: ptr(1), Longitude: ptr(2)})
	resp, err := svc.FindConstellations(ctx, loc.ID)
	if err != nil {
		t.Fatalf("FindConstellations: %v", err)
	}
	if _, ok := store.vectors[resp.QueryID]; !ok {
		t.Errorf("embedding not stored for query %d", resp.QueryID)
	}

	// embedding failure must not fail the narration
	svc = NewNarrationService(store, &MockGenerator{}, WithEmbedder(stubEmbedder{err: errors.New("down")}))
	if _, err := svc.FindConstellations(ctx, loc.ID); err != nil {
		t.Fatalf("embedding failure leaked: %v", err)
	}
}

func TestSimilarNarrationsUnsupported(t *testing.T) {
	svc := NewNarrationService(storage.NewMemoryStore(), &MockGenerator{})
	_, err := svc.SimilarNarrations(context.Background(), 1, 5)
	if !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
