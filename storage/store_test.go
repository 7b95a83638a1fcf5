package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"constellationFinder/core"
)

// runStoreContract 所有后端共用的行为测试
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("save and get location", func(t *testing.T) {
		loc := &core.LocationSample{Latitude: 40.7, Longitude: -74.0, Accuracy: 5}
		if err := s.SaveLocation(ctx, loc); err != nil {
			t.Fatalf("SaveLocation: %v", err)
		}
		if loc.ID == 0 || loc.CreatedAt.IsZero() {
			t.Fatalf("id and timestamp should be assigned: %+v", loc)
		}
		got, err := s.GetLocation(ctx, loc.ID)
		if err != nil {
			t.Fatalf("GetLocation: %v", err)
		}
		if got.Latitude != 40.7 || got.Longitude != -74.0 || got.Accuracy != 5 {
			t.Errorf("unexpected location: %+v", got)
		}
	})

	t.Run("missing location", func(t *testing.T) {
		_, err := s.GetLocation(ctx, 999999)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("narration requires location", func(t *testing.T) {
		q := &core.NarrationQuery{LocationID: 999999, Prompt: "p", Response: "r"}
		if err := s.SaveNarration(ctx, q); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		all, err := s.ListNarrations(ctx, 0, 100)
		if err != nil {
			t.Fatalf("ListNarrations: %v", err)
		}
		for _, n := range all {
			if n.LocationID == 999999 {
				t.Fatalf("orphan narration persisted: %+v", n)
			}
		}
	})

	t.Run("narration round trip and cascade", func(t *testing.T) {
		loc := &core.LocationSample{Owner: "alice", Latitude: 51.5, Longitude: -0.12}
		if err := s.SaveLocation(ctx, loc); err != nil {
			t.Fatalf("SaveLocation: %v", err)
		}
		q := &core.NarrationQuery{
			LocationID:     loc.ID,
			Prompt:         "prompt",
			Response:       "Orion is in the South",
			Constellations: []string{"Orion", "Ursa Major"},
		}
		if err := s.SaveNarration(ctx, q); err != nil {
			t.Fatalf("SaveNarration: %v", err)
		}
		if q.ID == 0 {
			t.Fatalf("narration id not assigned")
		}

		list, err := s.ListNarrations(ctx, loc.ID, 10)
		if err != nil {
			t.Fatalf("ListNarrations: %v", err)
		}
		if len(list) != 1 || !reflect.DeepEqual(list[0].Constellations, []string{"Orion", "Ursa Major"}) {
			t.Fatalf("unexpected narrations: %+v", list)
		}

		if err := s.DeleteLocation(ctx, loc.ID); err != nil {
			t.Fatalf("DeleteLocation: %v", err)
		}
		list, err = s.ListNarrations(ctx, loc.ID, 10)
		if err != nil {
			t.Fatalf("ListNarrations after delete: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("narrations should cascade, got %d", len(list))
		}
		if err := s.DeleteLocation(ctx, loc.ID); !IsNotFound(err) {
			t.Errorf("second delete should be ErrNotFound, got %v", err)
		}
	})

	t.Run("delete owner", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := s.SaveLocation(ctx, &core.LocationSample{Owner: "bob", Latitude: float64(i), Longitude: 1}); err != nil {
				t.Fatalf("SaveLocation: %v", err)
			}
		}
		keep := &core.LocationSample{Owner: "carol", Latitude: 1, Longitude: 1}
		if err := s.SaveLocation(ctx, keep); err != nil {
			t.Fatalf("SaveLocation: %v", err)
		}

		n, err := s.DeleteOwner(ctx, "bob")
		if err != nil {
			t.Fatalf("DeleteOwner: %v", err)
		}
		if n != 3 {
			t.Errorf("deleted %d, want 3", n)
		}
		if _, err := s.GetLocation(ctx, keep.ID); err != nil {
			t.Errorf("other owner's location removed: %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		base := time.Now().UTC().Add(time.Hour)
		var ids []int64
		for i := 0; i < 3; i++ {
			loc := &core.LocationSample{Latitude: 10, Longitude: 10, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := s.SaveLocation(ctx, loc); err != nil {
				t.Fatalf("SaveLocation: %v", err)
			}
			ids = append(ids, loc.ID)
		}
		list, err := s.ListLocations(ctx, 2)
		if err != nil {
			t.Fatalf("ListLocations: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("limit not applied: %d", len(list))
		}
		if list[0].ID != ids[2] || list[1].ID != ids[1] {
			t.Errorf("order = [%d %d], want [%d %d]", list[0].ID, list[1].ID, ids[2], ids[1])
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PGVECTOR_URL")
	if url == "" {
		t.Skipf("PGVECTOR_URL not set, skipping postgres store test")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url, 3)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)

	loc := &core.LocationSample{Latitude: 1, Longitude: 2}
	if err := s.SaveLocation(ctx, loc); err != nil {
		t.Fatalf("SaveLocation: %v", err)
	}
	vectors := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 0, 1}}
	var ids []int64
	for _, v := range vectors {
		q := &core.NarrationQuery{LocationID: loc.ID, Prompt: "p", Response: "r"}
		if err := s.SaveNarration(ctx, q); err != nil {
			t.Fatalf("SaveNarration: %v", err)
		}
		if err := s.SaveNarrationEmbedding(ctx, q.ID, v); err != nil {
			t.Fatalf("SaveNarrationEmbedding: %v", err)
		}
		ids = append(ids, q.ID)
	}
	similar, err := s.SimilarNarrations(ctx, ids[0], 2)
	if err != nil {
		t.Fatalf("SimilarNarrations: %v", err)
	}
	if len(similar) != 2 || similar[0].ID != ids[1] {
		t.Errorf("nearest neighbour should be %d, got %+v", ids[1], similar)
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultListLimit, -5: DefaultListLimit, 7: 7, 1000: MaxListLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
