// Package activity records when users were last seen by the API.
package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// MemoryStore keeps last-seen times in a map owned by the instance
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[int64]time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[int64]time.Time)}
}

// Touch records activity; older timestamps never overwrite newer ones
func (s *MemoryStore) Touch(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.seen[userID]; !ok || at.After(prev) {
		s.seen[userID] = at
	}
	return nil
}

func (s *MemoryStore) LastSeen(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.seen[userID]
	return at, ok, nil
}

// Active lists users seen at or after since, in ascending id order
func (s *MemoryStore) Active(_ context.Context, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, at := range s.seen {
		if !at.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Expire(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, at := range s.seen {
		if at.Before(olderThan) {
			delete(s.seen, id)
			removed++
		}
	}
	return removed, nil
}

// Verify interface compliance
var _ port.ActivityStore = (*MemoryStore)(nil)
