package mocks

import (
	"context"
	"sync"
)

// SettingsStore is an in-memory ports.SettingsStore
type SettingsStore struct {
	Values map[string]string
	// Err, when set, is returned by every call
	Err error
	mu  sync.Mutex
}

// NewSettingsStore creates a store pre-populated with values
func NewSettingsStore(values map[string]string) *SettingsStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &SettingsStore{Values: copied}
}

func (s *SettingsStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Values[key], nil
}

func (s *SettingsStore) GetAll(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string]string, len(s.Values))
	for k, v := range s.Values {
		out[k] = v
	}
	return out, nil
}

func (s *SettingsStore) Set(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for k, v := range values {
		s.Values[k] = v
	}
	return nil
}

func (s *SettingsStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, k := range keys {
		delete(s.Values, k)
	}
	return nil
}

// Value reads a key without a context, for assertions
func (s *SettingsStore) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Values[key]
}
