// Package memorystore keeps the journal and preferences in memory, for runs
// without a database.
package memorystore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fundportal/internal/journal"

	"github.com/google/uuid"
)

type MemoryActionStore struct {
	mu      sync.RWMutex
	actions map[uuid.UUID]journal.Action
}

var _ journal.Store = (*MemoryActionStore)(nil)

func NewActionStore() *MemoryActionStore {
	return &MemoryActionStore{
		actions: make(map[uuid.UUID]journal.Action),
	}
}

// Insert adds a. An existing id is left untouched.
func (s *MemoryActionStore) Insert(_ context.Context, a *journal.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; ok {
		return fmt.Errorf("duplicate action skipped: id=%s", a.ID)
	}
	s.actions[a.ID] = *a
	return nil
}

func (s *MemoryActionStore) Get(_ context.Context, id uuid.UUID) (*journal.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, journal.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryActionStore) Finish(_ context.Context, id uuid.UUID, status journal.Status, out journal.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, journal.ErrNotFound)
	}
	a.Status = status
	if out.TxHash != "" {
		a.TxHash = out.TxHash
	}
	a.RequestID = out.RequestID
	a.Shares = out.Shares
	if out.Err != nil {
		a.Error = out.Err.Error()
	}
	a.UpdatedAt = time.Now().UTC()
	s.actions[id] = a
	return nil
}

// List returns up to limit actions, newest first. limit <= 0 returns all.
func (s *MemoryActionStore) List(_ context.Context, limit int) ([]journal.Action, error) {
	s.mu.RLock()
	out := make([]journal.Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryActionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.actions {
		if a.CreatedAt.Before(cutoff) {
			delete(s.actions, id)
			n++
		}
	}
	return n, nil
}

// CountAll returns the number of stored actions.
func (s *MemoryActionStore) CountAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}
