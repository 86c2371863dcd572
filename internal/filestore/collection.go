package filestore

import (
	"encoding/json"
	"os"
	"sync"
)

// CollectionConfig configures a Collection.
type CollectionConfig struct {
	FilePath string      // empty = in-memory only
	Perm     os.FileMode // file permissions; default 0o600
	Name     string      // for logging/debugging
}

// Collection is a generic keyed record store backed by a single JSON file.
// It is the single source of truth for one entity type: every mutation takes
// the whole map as its update base and persists atomically, so concurrent
// multi-field updates cannot clobber each other.
type Collection[V any] struct {
	mu       sync.RWMutex
	items    map[string]V
	filePath string
	perm     os.FileMode
	name     string
}

// NewCollection creates a new Collection. Call Load to populate from disk.
func NewCollection[V any](cfg CollectionConfig) *Collection[V] {
	perm := cfg.Perm
	if perm == 0 {
		perm = 0o600
	}
	return &Collection[V]{
		items:    make(map[string]V),
		filePath: cfg.FilePath,
		perm:     perm,
		name:     cfg.Name,
	}
}

// Load reads the backing file into the in-memory map.
// No-op if FilePath is empty or the file doesn't exist.
func (c *Collection[V]) Load() error {
	if c.filePath == "" {
		return nil
	}
	data, err := ReadFileOrEmpty(c.filePath)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m := make(map[string]V)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.items = m
	return nil
}

// Get returns the value for key and whether it exists.
func (c *Collection[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Put sets a key-value pair and persists. On a persistence failure the
// in-memory map is restored, so the attempt is not committed.
func (c *Collection[V]) Put(key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.items[key]
	c.items[key] = value
	if err := c.persistLocked(); err != nil {
		if existed {
			c.items[key] = prev
		} else {
			delete(c.items, key)
		}
		return err
	}
	return nil
}

// Delete removes a key and persists, restoring the entry on a persistence
// failure.
func (c *Collection[V]) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.items[key]
	if !existed {
		return nil
	}
	delete(c.items, key)
	if err := c.persistLocked(); err != nil {
		c.items[key] = prev
		return err
	}
	return nil
}

// Len returns the number of items.
func (c *Collection[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a shallow copy of the in-memory map.
func (c *Collection[V]) Snapshot() map[string]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]V, len(c.items))
	for k, v := range c.items {
		snap[k] = v
	}
	return snap
}

// Mutate gives the caller exclusive access to the underlying map.
// fn receives the live map; after fn returns the collection is persisted.
// If fn returns an error, or persistence fails, the map is restored to its
// pre-call state — a failed mutation is never committed in memory. All
// read-modify-write sequences on the same entity type serialize through
// this lock.
func (c *Collection[V]) Mutate(fn func(items map[string]V) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]V, len(c.items))
	for k, v := range c.items {
		snapshot[k] = v
	}

	if err := fn(c.items); err != nil {
		c.items = snapshot
		return err
	}
	if err := c.persistLocked(); err != nil {
		c.items = snapshot
		return err
	}
	return nil
}

// ReadLocked calls fn with the map under a read lock. No persistence.
func (c *Collection[V]) ReadLocked(fn func(items map[string]V)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.items)
}

func (c *Collection[V]) persistLocked() error {
	if c.filePath == "" {
		return nil
	}
	data, err := MarshalJSONIndent(c.items)
	if err != nil {
		return err
	}
	return AtomicWrite(c.filePath, data, c.perm)
}
