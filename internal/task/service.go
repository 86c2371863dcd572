package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/internal/checkpoint"
	"conductor/internal/filestore"
	"conductor/internal/hub"
	"conductor/internal/logging"
	"conductor/internal/runner"
)

// Sentinel errors surfaced to the admission/decision surface.
var (
	ErrTaskNotFound      = fmt.Errorf("task not found")
	ErrNoPendingApproval = fmt.Errorf("task has no pending approval")
	ErrTaskTerminal      = fmt.Errorf("task already reached a terminal status")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
)

// Service owns the task records, the durable FIFO queue, and the approval
// gate. It is constructed once at process start and passed by handle to
// request-serving code.
type Service struct {
	records     *filestore.Collection[Task]
	checkpoints checkpoint.Store
	runner      runner.Runner
	hub         *hub.Hub
	logger      logging.Logger
	now         func() time.Time

	mu       sync.Mutex
	pending  []string        // admitted, awaiting dispatch, FIFO
	admitted map[string]bool // queued or claimed by the worker
	wake     chan struct{}

	baseCtx  context.Context
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
	workerWG sync.WaitGroup
	resumeWG sync.WaitGroup // in-flight background approval resumes
}

// NewService wires the task service. records must already be loaded.
func NewService(records *filestore.Collection[Task], checkpoints checkpoint.Store, run runner.Runner, notifier *hub.Hub, logger logging.Logger) *Service {
	return &Service{
		records:     records,
		checkpoints: checkpoints,
		runner:      run,
		hub:         notifier,
		logger:      logging.OrNop(logger),
		now:         time.Now,
		admitted:    make(map[string]bool),
		wake:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}
}

// SetClock overrides the time source. Exposed for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams describes a new task.
type CreateParams struct {
	Title       string
	Description string
	AgentID     string
	SessionID   string
	// Enqueue admits the task for execution immediately instead of
	// parking it in the backlog.
	Enqueue bool
}

// Create persists a new task and notifies observers. With Enqueue set the
// task is written directly in queued and admitted; the record write and the
// admission share one persist, so a store failure leaves nothing behind.
func (s *Service) Create(_ context.Context, params CreateParams) (Task, error) {
	now := s.now()
	t := Task{
		ID:          "task-" + uuid.New().String(),
		Title:       params.Title,
		Description: params.Description,
		AgentID:     params.AgentID,
		SessionID:   params.SessionID,
		Status:      StatusBacklog,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if params.Enqueue {
		t.Status = StatusQueued
	}
	if t.Title == "" {
		t.Title = "Untitled task"
	}
	if t.SessionID == "" {
		t.SessionID = "session-" + uuid.New().String()
	}

	if err := s.records.Put(t.ID, t); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	if params.Enqueue {
		s.admit(t.ID)
	}
	s.hub.Notify(hub.TopicTasks)
	return t, nil
}

// Get returns the task with the given id.
func (s *Service) Get(_ context.Context, id string) (Task, error) {
	t, ok := s.records.Get(id)
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// List returns all tasks, newest first.
func (s *Service) List(_ context.Context) []Task {
	snap := s.records.Snapshot()
	tasks := make([]Task, 0, len(snap))
	for _, t := range snap {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// Delete removes the task record entirely. A task with an open checkpoint
// also has its checkpoint deleted so no suspended state leaks.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.PendingApproval != nil {
			if err := s.checkpoints.DeleteThread(ctx, t.PendingApproval.ThreadID); err != nil {
				return fmt.Errorf("delete checkpoint for %s: %w", id, err)
			}
		}
		delete(items, id)
		return nil
	})
	if err != nil {
		return err
	}

	// Drop any queued admission so the worker never dispatches a deleted task.
	s.mu.Lock()
	delete(s.admitted, id)
	for i, pendingID := range s.pending {
		if pendingID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.hub.Notify(hub.TopicTasks)
	return nil
}

// AddComment appends a comment to the task's log. Appends are atomic with
// respect to concurrent status transitions on the same record.
func (s *Service) AddComment(_ context.Context, id, author, body string) (Comment, error) {
	comment := Comment{
		ID:        "comment-" + uuid.New().String(),
		Author:    author,
		Body:      body,
		CreatedAt: s.now(),
	}
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		t.Comments = append(t.Comments, comment)
		t.UpdatedAt = comment.CreatedAt
		items[id] = t
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	s.hub.Notify(hub.TopicTasks)
	return comment, nil
}

// SetStatus applies a caller-driven status change. The only caller-owned
// transition is backlog → queued, which admits the task for execution.
// Everything else belongs to the queue worker or the approval gate.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if status != StatusQueued {
		return fmt.Errorf("%w: %q is not caller-assignable", ErrInvalidTransition, status)
	}
	return s.Enqueue(ctx, id)
}
