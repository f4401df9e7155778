// Package prefs persists per-user view preferences.
package prefs

import (
	"context"
	"slices"
	"sync"
)

// CollapseStore keeps the collapsed comment ids a user chose for a movie.
type CollapseStore interface {
	Load(ctx context.Context, userID, movieRef string) ([]int64, error)
	Save(ctx context.Context, userID, movieRef string, ids []int64) error
}

type collapseKey struct {
	userID   string
	movieRef string
}

// MemoryCollapseStore is a development-only in-memory implementation.
type MemoryCollapseStore struct {
	mu   sync.RWMutex
	sets map[collapseKey][]int64
}

func NewMemoryCollapseStore() *MemoryCollapseStore {
	return &MemoryCollapseStore{sets: make(map[collapseKey][]int64)}
}

func (s *MemoryCollapseStore) Load(_ context.Context, userID, movieRef string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sets[collapseKey{userID, movieRef}]), nil
}

func (s *MemoryCollapseStore) Save(_ context.Context, userID, movieRef string, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := collapseKey{userID, movieRef}
	if len(ids) == 0 {
		delete(s.sets, k)
		return nil
	}
	s.sets[k] = slices.Clone(ids)
	return nil
}
