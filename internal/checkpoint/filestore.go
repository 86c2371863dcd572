package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"conductor/internal/filestore"
)

// FileStore persists checkpoints as individual JSON files inside a directory.
// Each thread maps to {dir}/{threadID}.json. All operations are thread-safe.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore returns a store that writes checkpoints under dir. The
// directory is created on the first save if it does not already exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// SaveThread writes the state blob to {dir}/{threadID}.json atomically.
func (s *FileStore) SaveThread(_ context.Context, threadID string, state json.RawMessage) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := filestore.AtomicWrite(s.path(threadID), state, 0o600); err != nil {
		return fmt.Errorf("checkpoint: write failed: %w", err)
	}
	return nil
}

// LoadThread reads the state blob for threadID.
func (s *FileStore) LoadThread(_ context.Context, threadID string) (json.RawMessage, error) {
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint: %w: %s", ErrThreadNotFound, threadID)
		}
		return nil, fmt.Errorf("checkpoint: read failed: %w", err)
	}
	return data, nil
}

// DeleteThread removes the checkpoint file. Absent threads are a no-op.
func (s *FileStore) DeleteThread(_ context.Context, threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(threadID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete failed: %w", err)
	}
	return nil
}

// HasThread reports whether a checkpoint file exists for threadID.
func (s *FileStore) HasThread(_ context.Context, threadID string) (bool, error) {
	if err := validateThreadID(threadID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checkpoint: stat failed: %w", err)
	}
	return true, nil
}

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".json")
}

// validateThreadID rejects empty IDs and IDs that would escape the store dir.
func validateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("checkpoint: thread id is required")
	}
	if strings.ContainsAny(threadID, "/\\") || threadID == "." || threadID == ".." {
		return fmt.Errorf("checkpoint: invalid thread id %q", threadID)
	}
	return nil
}
