// Package checkpoint persists suspended execution state keyed by an opaque
// thread identifier, so an approved run can resume where it stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrThreadNotFound is returned when no checkpoint exists for a thread ID.
var ErrThreadNotFound = fmt.Errorf("checkpoint thread not found")

// Store is the persistence contract for execution checkpoints.
// The orchestration core only ever deletes and probes threads; the runner
// owns writing them.
type Store interface {
	// SaveThread persists the opaque state blob under threadID,
	// overwriting any previous checkpoint for the same thread.
	SaveThread(ctx context.Context, threadID string, state json.RawMessage) error
	// LoadThread retrieves the state saved under threadID. Returns an error
	// wrapping ErrThreadNotFound if no checkpoint exists.
	LoadThread(ctx context.Context, threadID string) (json.RawMessage, error)
	// DeleteThread removes the checkpoint for threadID. Deleting an absent
	// thread is a no-op, so reject paths can call it unconditionally.
	DeleteThread(ctx context.Context, threadID string) error
	// HasThread reports whether a checkpoint exists for threadID.
	HasThread(ctx context.Context, threadID string) (bool, error)
}
