package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			state := json.RawMessage(`{"step": 3, "messages": ["a", "b"]}`)
			if err := store.SaveThread(ctx, "thread-1", state); err != nil {
				t.Fatalf("SaveThread: %v", err)
			}

			loaded, err := store.LoadThread(ctx, "thread-1")
			if err != nil {
				t.Fatalf("LoadThread: %v", err)
			}
			if string(loaded) != string(state) {
				t.Errorf("loaded %s, want %s", loaded, state)
			}

			ok, err := store.HasThread(ctx, "thread-1")
			if err != nil || !ok {
				t.Errorf("HasThread = %t, %v; want true", ok, err)
			}
		})
	}
}

func TestStore_DeleteLeavesNothingReachable(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = store.SaveThread(ctx, "thread-1", json.RawMessage(`{}`))
			if err := store.DeleteThread(ctx, "thread-1"); err != nil {
				t.Fatalf("DeleteThread: %v", err)
			}

			ok, err := store.HasThread(ctx, "thread-1")
			if err != nil {
				t.Fatalf("HasThread: %v", err)
			}
			if ok {
				t.Error("thread still reachable after delete")
			}
			if _, err := store.LoadThread(ctx, "thread-1"); err == nil {
				t.Error("expected LoadThread to fail after delete")
			}
		})
	}
}

func TestStore_DeleteAbsentIsNoOp(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.DeleteThread(ctx, "never-existed"); err != nil {
				t.Errorf("DeleteThread on absent thread: %v", err)
			}
		})
	}
}

func TestStore_RejectsUnsafeThreadIDs(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../escape", "a/b", `a\b`, ".", ".."} {
				if err := store.SaveThread(ctx, id, json.RawMessage(`{}`)); err == nil {
					t.Errorf("SaveThread accepted unsafe id %q", id)
				}
			}
		})
	}
}
