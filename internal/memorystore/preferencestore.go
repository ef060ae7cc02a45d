package memorystore

import (
	"context"
	"sync"

	"fundportal/internal/journal"
)

type MemoryPreferenceStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ journal.Preferences = (*MemoryPreferenceStore)(nil)

func NewPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{
		values: make(map[string]string),
	}
}

func (s *MemoryPreferenceStore) GetPreference(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryPreferenceStore) SetPreference(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
