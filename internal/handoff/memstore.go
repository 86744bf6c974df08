package handoff

import (
	"context"
	"slices"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/killclip/internal/errors"
)

// MemoryStore keeps the handoff in process memory. It serves single-process
// deployments and tests; nothing survives a restart.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore returns an empty store. Entries never expire.
func NewMemoryStore() *MemoryStore {
	// A zero cleanup interval starts no janitor goroutine.
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (Record, bool, error) {
	v, ok := s.cache.Get(KeySessionURL)
	if !ok {
		return Record{}, false, nil
	}
	rec, ok := v.(Record)
	if !ok {
		return Record{}, true, corrupt(errors.NewStd("unexpected value type in memory store"), KeySessionURL)
	}
	return cloneRecord(rec), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.cache.Set(KeySessionURL, cloneRecord(rec), cache.NoExpiration)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context) error {
	s.cache.Delete(KeySessionURL)
	return nil
}

// Watermark implements Store.
func (s *MemoryStore) Watermark(_ context.Context) (float64, error) {
	v, ok := s.cache.Get(KeyWatermark)
	if !ok {
		return 0, nil
	}
	wm, _ := v.(float64)
	return wm, nil
}

// SetWatermark implements Store.
func (s *MemoryStore) SetWatermark(_ context.Context, publishedAt float64) error {
	s.cache.Set(KeyWatermark, publishedAt, cache.NoExpiration)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

func cloneRecord(r Record) Record {
	r.WallClock = slices.Clone(r.WallClock)
	r.CaptureClock = slices.Clone(r.CaptureClock)
	r.EventTypes = slices.Clone(r.EventTypes)
	return r
}
