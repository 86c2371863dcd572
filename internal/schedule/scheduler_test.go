package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"conductor/internal/filestore"
	"conductor/internal/hub"
	"conductor/internal/task"
)

// mockSpawner records synthesized tasks.
type mockSpawner struct {
	mu    sync.Mutex
	calls []task.CreateParams
	err   error
}

func (m *mockSpawner) Create(_ context.Context, params task.CreateParams) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return task.Task{}, m.err
	}
	m.calls = append(m.calls, params)
	return task.Task{ID: fmt.Sprintf("task-%d", len(m.calls)), Status: task.StatusQueued}, nil
}

func (m *mockSpawner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockSpawner) lastCall() task.CreateParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func newTestScheduler(t *testing.T) (*Scheduler, *mockSpawner) {
	t.Helper()
	records := filestore.NewCollection[Schedule](filestore.CollectionConfig{Name: "schedules"})
	spawner := &mockSpawner{}
	sched := New(Config{TickInterval: time.Hour}, records, spawner, hub.New(nil), nil)
	t.Cleanup(sched.Stop)
	return sched, spawner
}

func TestCreate_ValidatesDefinition(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	cases := []CreateParams{
		{AgentID: "", TaskPrompt: "p", Type: TypeInterval, IntervalMs: 1000},
		{AgentID: "a", TaskPrompt: "", Type: TypeInterval, IntervalMs: 1000},
		{AgentID: "a", TaskPrompt: "p", Type: TypeInterval, IntervalMs: 0},
		{AgentID: "a", TaskPrompt: "p", Type: TypeCron, Cron: ""},
		{AgentID: "a", TaskPrompt: "p", Type: TypeCron, Cron: "not-a-cron"},
		{AgentID: "a", TaskPrompt: "p", Type: Type("weekly")},
	}
	for i, params := range cases {
		if _, _, err := sched.Create(ctx, params); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, params)
		}
	}
}

func TestCreate_RejectsActiveDuplicate(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	first, created, err := sched.Create(ctx, CreateParams{
		AgentID: "a", TaskPrompt: "Take   a Screenshot", Type: TypeInterval, IntervalMs: 60000,
	})
	if err != nil || !created {
		t.Fatalf("first create: created=%t err=%v", created, err)
	}

	dup, created, err := sched.Create(ctx, CreateParams{
		AgentID: "a", TaskPrompt: "take a screenshot", Type: TypeInterval, IntervalMs: 60000,
	})
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Error("functional duplicate must not create a second schedule")
	}
	if dup.ID != first.ID {
		t.Errorf("duplicate must return the existing match, got %s want %s", dup.ID, first.ID)
	}

	// A different interval is not a duplicate.
	_, created, err = sched.Create(ctx, CreateParams{
		AgentID: "a", TaskPrompt: "take a screenshot", Type: TypeInterval, IntervalMs: 120000,
	})
	if err != nil || !created {
		t.Errorf("different interval: created=%t err=%v", created, err)
	}
}

func TestCreate_TerminalSchedulesNeverBlock(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	params := CreateParams{AgentID: "a", TaskPrompt: "ping", Type: TypeInterval, IntervalMs: 60000}

	for _, status := range []Status{StatusCompleted, StatusFailed, StatusPaused} {
		first, created, err := sched.Create(ctx, params)
		if err != nil || !created {
			t.Fatalf("create (%s case): created=%t err=%v", status, created, err)
		}
		if _, err := sched.SetStatus(ctx, first.ID, status); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}

		second, created, err := sched.Create(ctx, params)
		if err != nil {
			t.Fatalf("re-create after %s: %v", status, err)
		}
		if !created {
			t.Errorf("schedule in %s must not block an identical new one", status)
		}
		if second.ID == first.ID {
			t.Errorf("expected a fresh schedule, got the %s one back", status)
		}
		// Reset for the next case.
		if err := sched.Delete(ctx, second.ID); err != nil {
			t.Fatalf("cleanup delete: %v", err)
		}
		if err := sched.Delete(ctx, first.ID); err != nil {
			t.Fatalf("cleanup delete: %v", err)
		}
	}
}

func TestTick_IntervalEndToEnd(t *testing.T) {
	sched, spawner := newTestScheduler(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched.SetClock(func() time.Time { return now })

	created, _, err := sched.Create(ctx, CreateParams{
		AgentID: "a1", TaskPrompt: "ping", Type: TypeInterval, IntervalMs: 1000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Never run before: due immediately.
	sched.Tick(ctx)
	if spawner.callCount() != 1 {
		t.Fatalf("expected 1 spawned task, got %d", spawner.callCount())
	}
	call := spawner.lastCall()
	if call.AgentID != "a1" || !call.Enqueue {
		t.Errorf("spawned task params = %+v", call)
	}

	got, _ := sched.Get(ctx, created.ID)
	firstRun := now
	if !got.LastRunAt.Equal(firstRun) {
		t.Errorf("lastRunAt = %s, want %s", got.LastRunAt, firstRun)
	}
	if !got.NextRunAt.Equal(firstRun.Add(time.Second)) {
		t.Errorf("nextRunAt = %s, want %s", got.NextRunAt, firstRun.Add(time.Second))
	}

	// Not yet due again.
	now = now.Add(400 * time.Millisecond)
	sched.Tick(ctx)
	if spawner.callCount() != 1 {
		t.Fatalf("premature trigger: %d calls", spawner.callCount())
	}

	// Past lastRunAt + interval: due again, exactly once.
	now = firstRun.Add(1500 * time.Millisecond)
	sched.Tick(ctx)
	if spawner.callCount() != 2 {
		t.Fatalf("expected second trigger, got %d calls", spawner.callCount())
	}
	got, _ = sched.Get(ctx, created.ID)
	if !got.LastRunAt.Equal(now) {
		t.Errorf("lastRunAt = %s, want %s", got.LastRunAt, now)
	}
	if !got.NextRunAt.Equal(now.Add(time.Second)) {
		t.Errorf("nextRunAt = %s, want %s", got.NextRunAt, now.Add(time.Second))
	}
}

func TestTick_CronDueness(t *testing.T) {
	sched, spawner := newTestScheduler(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 8, 59, 30, 0, time.UTC) // Monday, just before 09:00
	sched.SetClock(func() time.Time { return now })

	_, _, err := sched.Create(ctx, CreateParams{
		AgentID: "a1", TaskPrompt: "weekly report", Type: TypeCron, Cron: "0 9 * * 1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Next fire (Mon 09:00) is still in the future.
	sched.Tick(ctx)
	if spawner.callCount() != 0 {
		t.Fatalf("cron fired early: %d calls", spawner.callCount())
	}

	now = time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
	sched.Tick(ctx)
	if spawner.callCount() != 1 {
		t.Fatalf("expected cron trigger at 09:00, got %d calls", spawner.callCount())
	}

	// Same cron slot must not fire twice.
	now = now.Add(30 * time.Second)
	sched.Tick(ctx)
	if spawner.callCount() != 1 {
		t.Fatalf("cron slot fired twice: %d calls", spawner.callCount())
	}
}

func TestTick_SkipsInactiveSchedules(t *testing.T) {
	sched, spawner := newTestScheduler(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched.SetClock(func() time.Time { return now })

	created, _, _ := sched.Create(ctx, CreateParams{
		AgentID: "a1", TaskPrompt: "ping", Type: TypeInterval, IntervalMs: 1000,
	})
	if _, err := sched.SetStatus(ctx, created.ID, StatusPaused); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	sched.Tick(ctx)
	if spawner.callCount() != 0 {
		t.Errorf("paused schedule triggered: %d calls", spawner.callCount())
	}
}

func TestTaskTitle_TruncatesOnRuneBoundary(t *testing.T) {
	if got := taskTitle("  collapse \t whitespace  runs "); got != "collapse whitespace runs" {
		t.Errorf("taskTitle = %q", got)
	}

	long := taskTitle(strings.Repeat("日", 120))
	if !utf8.ValidString(long) {
		t.Errorf("truncated title is not valid UTF-8: %q", long)
	}
	if got := utf8.RuneCountInString(long); got != 80 {
		t.Errorf("rune count = %d, want 80", got)
	}
	if !strings.HasSuffix(long, "...") {
		t.Errorf("expected ellipsis suffix, got %q", long)
	}
}

func TestTick_SpawnFailureIsolated(t *testing.T) {
	records := filestore.NewCollection[Schedule](filestore.CollectionConfig{Name: "schedules"})
	spawner := &mockSpawner{err: fmt.Errorf("queue unavailable")}
	sched := New(Config{TickInterval: time.Hour}, records, spawner, hub.New(nil), nil)
	t.Cleanup(sched.Stop)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched.SetClock(func() time.Time { return now })

	created, _, _ := sched.Create(ctx, CreateParams{
		AgentID: "a1", TaskPrompt: "ping", Type: TypeInterval, IntervalMs: 1000,
	})

	sched.Tick(ctx) // must not panic, must not advance lastRunAt

	got, _ := sched.Get(ctx, created.ID)
	if !got.LastRunAt.IsZero() {
		t.Error("failed trigger must not advance lastRunAt")
	}

	// Once the spawner recovers the schedule fires again.
	spawner.mu.Lock()
	spawner.err = nil
	spawner.mu.Unlock()
	sched.Tick(ctx)
	if spawner.callCount() != 1 {
		t.Errorf("expected trigger after recovery, got %d calls", spawner.callCount())
	}
}
