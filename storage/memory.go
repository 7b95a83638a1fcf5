package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"constellationFinder/core"
)

// MemoryStore 内存实现，进程退出即丢失
type MemoryStore struct {
	mu         sync.RWMutex
	nextLocID  int64
	nextQID    int64
	locations  map[int64]core.LocationSample
	narrations map[int64]core.NarrationQuery
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations:  make(map[int64]core.LocationSample),
		narrations: make(map[int64]core.NarrationQuery),
	}
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveLocation(_ context.Context, loc *core.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocID++
	loc.ID = s.nextLocID
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	s.locations[loc.ID] = *loc
	return nil
}

func (s *MemoryStore) GetLocation(_ context.Context, id int64) (*core.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &loc, nil
}

func (s *MemoryStore) ListLocations(_ context.Context, limit int) ([]core.LocationSample, error) {
	s.mu.RLock()
	out := make([]core.LocationSample, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteLocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[id]; !ok {
		return ErrNotFound
	}
	s.deleteLocationLocked(id)
	return nil
}

func (s *MemoryStore) DeleteOwner(_ context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, loc := range s.locations {
		if owner != "" && loc.Owner == owner {
			s.deleteLocationLocked(id)
			n++
		}
	}
	return n, nil
}

// deleteLocationLocked 级联删除，调用方持有写锁
func (s *MemoryStore) deleteLocationLocked(id int64) {
	delete(s.locations, id)
	for qid, q := range s.narrations {
		if q.LocationID == id {
			delete(s.narrations, qid)
		}
	}
}

func (s *MemoryStore) SaveNarration(_ context.Context, q *core.NarrationQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[q.LocationID]; !ok {
		return ErrNotFound
	}
	s.nextQID++
	q.ID = s.nextQID
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	stored := *q
	stored.Constellations = append([]string(nil), q.Constellations...)
	s.narrations[q.ID] = stored
	return nil
}

func (s *MemoryStore) ListNarrations(_ context.Context, locationID int64, limit int) ([]core.NarrationQuery, error) {
	s.mu.RLock()
	out := make([]core.NarrationQuery, 0)
	for _, q := range s.narrations {
		if locationID == 0 || q.LocationID == locationID {
			out = append(out, q)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
