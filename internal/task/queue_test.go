package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"conductor/internal/checkpoint"
	"conductor/internal/filestore"
	"conductor/internal/hub"
	"conductor/internal/runner"
)

// newTestService builds a service over in-memory stores with the given runner.
func newTestService(t *testing.T, run runner.Runner) (*Service, *checkpoint.MemoryStore) {
	t.Helper()
	records := filestore.NewCollection[Task](filestore.CollectionConfig{Name: "tasks"})
	checkpoints := checkpoint.NewMemoryStore()
	svc := NewService(records, checkpoints, run, hub.New(nil), nil)
	t.Cleanup(svc.Stop)
	return svc, checkpoints
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, svc *Service, id string, status Status) {
	t.Helper()
	waitFor(t, fmt.Sprintf("task %s to reach %s", id, status), func() bool {
		got, err := svc.Get(context.Background(), id)
		return err == nil && got.Status == status
	})
}

func TestEnqueue_IdempotentSingleDispatch(t *testing.T) {
	release := make(chan struct{})
	run := runner.NewScripted(runner.Step{
		Outcome: runner.Outcome{Result: "done"},
		Block:   release,
	})
	svc, _ := newTestService(t, run)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateParams{Title: "t", AgentID: "a1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.Start(ctx)

	if err := svc.Enqueue(ctx, created.ID); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := svc.Enqueue(ctx, created.ID); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	close(release)

	waitStatus(t, svc, created.ID, StatusCompleted)
	time.Sleep(20 * time.Millisecond) // allow any erroneous second dispatch to surface
	if n := run.RunCount(); n != 1 {
		t.Errorf("expected exactly one dispatch, got %d", n)
	}
}

func TestEnqueue_UnknownTask(t *testing.T) {
	svc, _ := newTestService(t, runner.NewScripted())
	err := svc.Enqueue(context.Background(), "task-nope")
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestEnqueue_TerminalTaskRejected(t *testing.T) {
	svc, _ := newTestService(t, runner.NewScripted())
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateParams{Title: "t", AgentID: "a1"})
	err := svc.records.Mutate(func(items map[string]Task) error {
		tsk := items[created.ID]
		tsk.Status = StatusCompleted
		tsk.Result = "already done"
		items[created.ID] = tsk
		return nil
	})
	if err != nil {
		t.Fatalf("seed terminal status: %v", err)
	}

	if err := svc.Enqueue(ctx, created.ID); err == nil {
		t.Fatal("expected terminal task to be rejected")
	}
}

func TestQueue_OneFailureNeverBlocksOthers(t *testing.T) {
	run := runner.NewScripted(
		runner.Step{Err: fmt.Errorf("model exploded")},
		runner.Step{Outcome: runner.Outcome{Result: "fine"}},
	)
	svc, _ := newTestService(t, run)
	ctx := context.Background()
	svc.Start(ctx)

	first, _ := svc.Create(ctx, CreateParams{Title: "first", AgentID: "a1", Enqueue: true})
	second, _ := svc.Create(ctx, CreateParams{Title: "second", AgentID: "a1", Enqueue: true})

	waitStatus(t, svc, first.ID, StatusFailed)
	waitStatus(t, svc, second.ID, StatusCompleted)

	got, _ := svc.Get(ctx, first.ID)
	if got.Error != "model exploded" {
		t.Errorf("first task error = %q", got.Error)
	}
	if got.Result != "" {
		t.Errorf("failed task must not carry a result, got %q", got.Result)
	}
}

func TestResumeOnStartup_ReAdmitsOrphansExactlyOnce(t *testing.T) {
	records := filestore.NewCollection[Task](filestore.CollectionConfig{Name: "tasks"})
	now := time.Now()
	seed := func(id string, status Status, gate *PendingApproval) {
		_ = records.Put(id, Task{
			ID: id, Title: id, AgentID: "a1", SessionID: "s-" + id,
			Status: status, PendingApproval: gate,
			CreatedAt: now, UpdatedAt: now,
		})
	}
	seed("task-queued", StatusQueued, nil)
	seed("task-running", StatusRunning, nil)
	seed("task-done", StatusCompleted, nil)
	seed("task-gated", StatusRunning, &PendingApproval{ThreadID: "th-gate", RequestedAt: now})

	run := runner.NewScripted(
		runner.Step{Outcome: runner.Outcome{Result: "recovered"}},
		runner.Step{Outcome: runner.Outcome{Result: "recovered"}},
	)
	svc := NewService(records, checkpoint.NewMemoryStore(), run, hub.New(nil), nil)
	t.Cleanup(svc.Stop)

	ctx := context.Background()
	svc.Start(ctx)
	if err := svc.ResumeOnStartup(ctx); err != nil {
		t.Fatalf("ResumeOnStartup: %v", err)
	}

	waitStatus(t, svc, "task-queued", StatusCompleted)
	waitStatus(t, svc, "task-running", StatusCompleted)

	if n := run.RunCount(); n != 2 {
		t.Errorf("expected each orphan re-admitted exactly once (2 runs), got %d", n)
	}

	// A task parked on an open approval gate keeps waiting for the human.
	gated, _ := svc.Get(ctx, "task-gated")
	if gated.Status != StatusRunning || gated.PendingApproval == nil {
		t.Errorf("gated task must stay suspended, got status=%s gate=%v", gated.Status, gated.PendingApproval)
	}
	done, _ := svc.Get(ctx, "task-done")
	if done.Status != StatusCompleted {
		t.Errorf("terminal task must not be re-admitted, got %s", done.Status)
	}
}

func TestShutdown_PreservesQueuedWork(t *testing.T) {
	hold := make(chan struct{})
	run := runner.NewScripted(
		runner.Step{Outcome: runner.Outcome{Result: "never delivered"}, Block: hold},
	)
	svc, _ := newTestService(t, run)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	first, _ := svc.Create(ctx, CreateParams{Title: "in flight", AgentID: "a1", Enqueue: true})
	waitFor(t, "first task to start", func() bool { return run.RunCount() == 1 })
	second, _ := svc.Create(ctx, CreateParams{Title: "waiting", AgentID: "a1", Enqueue: true})

	cancel()
	svc.Stop()

	// Neither the interrupted run nor the never-started task may end up
	// terminal: both must survive in queued for the next process lifetime.
	for _, id := range []string{first.ID, second.ID} {
		got, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if got.Status != StatusQueued {
			t.Errorf("task %s = %s after shutdown, want queued", id, got.Status)
		}
		if got.Error != "" {
			t.Errorf("task %s carries error %q after shutdown", id, got.Error)
		}
	}
}

func TestDispatch_SkipsTaskDeletedWhileQueued(t *testing.T) {
	release := make(chan struct{})
	run := runner.NewScripted(
		runner.Step{Outcome: runner.Outcome{Result: "blocker"}, Block: release},
		runner.Step{Outcome: runner.Outcome{Result: "should never run"}},
	)
	svc, _ := newTestService(t, run)
	ctx := context.Background()
	svc.Start(ctx)

	blocker, _ := svc.Create(ctx, CreateParams{Title: "blocker", AgentID: "a1", Enqueue: true})
	waitFor(t, "blocker to start", func() bool { return run.RunCount() == 1 })

	victim, _ := svc.Create(ctx, CreateParams{Title: "victim", AgentID: "a1", Enqueue: true})
	if err := svc.Delete(ctx, victim.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(release)

	waitStatus(t, svc, blocker.ID, StatusCompleted)
	time.Sleep(20 * time.Millisecond)
	if n := run.RunCount(); n != 1 {
		t.Errorf("deleted task was dispatched anyway (%d runs)", n)
	}
}
