package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]json.RawMessage)}
}

// SaveThread stores the state blob under threadID.
func (s *MemoryStore) SaveThread(_ context.Context, threadID string, state json.RawMessage) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(json.RawMessage(nil), state...)
	return nil
}

// LoadThread retrieves the state blob for threadID.
func (s *MemoryStore) LoadThread(_ context.Context, threadID string) (json.RawMessage, error) {
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("checkpoint: %w: %s", ErrThreadNotFound, threadID)
	}
	return state, nil
}

// DeleteThread removes the checkpoint for threadID.
func (s *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// HasThread reports whether a checkpoint exists for threadID.
func (s *MemoryStore) HasThread(_ context.Context, threadID string) (bool, error) {
	if err := validateThreadID(threadID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[threadID]
	return ok, nil
}
