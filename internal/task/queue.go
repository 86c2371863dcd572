package task

import (
	"context"
	"fmt"
	"sort"

	"conductor/internal/hub"
	"conductor/internal/metrics"
	"conductor/internal/runner"
)

// Start launches the dispatch worker. The queue runs a single global serial
// worker: exactly one task executes at a time, which keeps shared working
// directories free of cross-task contention. A bounded per-agent pool would
// also satisfy the contract as long as per-task single flight holds.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	s.workerWG.Add(1)
	go s.workerLoop(ctx)
}

// Stop drains the worker and waits for in-flight background resumes.
// Safe to call multiple times.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.workerWG.Wait()
		s.resumeWG.Wait()
		s.logger.Info("Queue: stopped")
	})
}

// Enqueue admits a task for execution. Idempotent: enqueuing a task that is
// already queued or running is a no-op, and double enqueue produces exactly
// one dispatch.
func (s *Service) Enqueue(_ context.Context, id string) error {
	var transitioned, running bool
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		switch t.Status {
		case StatusQueued:
			return nil // already admitted
		case StatusRunning:
			running = true
			return nil // execution already in flight
		case StatusCompleted, StatusFailed:
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, t.Status)
		}
		t.Status = StatusQueued
		t.UpdatedAt = s.now()
		items[id] = t
		transitioned = true
		return nil
	})
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	s.admit(id)
	if transitioned {
		s.hub.Notify(hub.TopicTasks)
	}
	return nil
}

// admit records the worker claim and wakes the dispatch loop. A task already
// claimed is not admitted twice.
func (s *Service) admit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admitted[id] {
		return
	}
	s.admitted[id] = true
	s.pending = append(s.pending, id)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ResumeOnStartup re-admits tasks left queued or running by a prior process
// lifetime. It must complete before external requests are accepted. A task
// suspended on an open approval gate is legitimately parked and keeps
// waiting for the human decision instead of being re-run.
func (s *Service) ResumeOnStartup(ctx context.Context) error {
	type orphan struct {
		id     string
		status Status
	}
	var orphans []orphan
	s.records.ReadLocked(func(items map[string]Task) {
		for id, t := range items {
			if t.Status != StatusQueued && t.Status != StatusRunning {
				continue
			}
			if t.PendingApproval != nil {
				continue
			}
			orphans = append(orphans, orphan{id: id, status: t.Status})
		}
	})
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].id < orphans[j].id })

	for _, o := range orphans {
		if o.status == StatusRunning {
			// Assumed not-completed: the runner is idempotent at
			// conversation-turn granularity, so re-running is safe.
			err := s.records.Mutate(func(items map[string]Task) error {
				t, ok := items[o.id]
				if !ok {
					return nil
				}
				t.Status = StatusQueued
				t.UpdatedAt = s.now()
				items[o.id] = t
				return nil
			})
			if err != nil {
				return fmt.Errorf("requeue orphaned task %s: %w", o.id, err)
			}
		}
		s.admit(o.id)
		s.logger.Info("Queue: re-admitted orphaned task %s (was %s)", o.id, o.status)
	}
	if len(orphans) > 0 {
		s.hub.Notify(hub.TopicTasks)
	}
	return nil
}

// QueueDepth returns the number of admitted tasks awaiting dispatch.
func (s *Service) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Service) workerLoop(ctx context.Context) {
	defer s.workerWG.Done()
	for {
		// Shutdown wins over pending work: anything not yet dispatched
		// stays queued on disk for the next process lifetime.
		select {
		case <-s.stopped:
			return
		case <-ctx.Done():
			return
		default:
		}
		id, ok := s.popPending()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stopped:
				return
			case <-ctx.Done():
				return
			}
		}
		s.dispatch(ctx, id)
	}
}

func (s *Service) popPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	id := s.pending[0]
	s.pending = s.pending[1:]
	return id, true
}

// dispatch runs one task to completion, failure, or suspension. One task's
// failure never blocks the rest of the queue: every error is converted to
// task state at this boundary.
func (s *Service) dispatch(ctx context.Context, id string) {
	defer func() {
		s.mu.Lock()
		delete(s.admitted, id)
		s.mu.Unlock()
	}()

	var claimed Task
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.Status != StatusQueued {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
		}
		t.Status = StatusRunning
		t.UpdatedAt = s.now()
		items[id] = t
		claimed = t
		return nil
	})
	if err != nil {
		// Deleted or no longer queued while waiting; nothing to run.
		s.logger.Debug("Queue: skipping dispatch of %s: %v", id, err)
		return
	}
	s.hub.Notify(hub.TopicTasks)

	metrics.TasksDispatched.Inc()
	s.logger.Info("Queue: dispatching task %s (agent=%s)", id, claimed.AgentID)

	outcome, runErr := s.runner.Run(ctx, runner.Request{
		TaskID:    claimed.ID,
		AgentID:   claimed.AgentID,
		SessionID: claimed.SessionID,
		Prompt:    prompt(claimed),
	})
	if runErr != nil && ctx.Err() != nil {
		// Shutdown cut the run short. That is not a task failure: leave it
		// queued so startup recovery re-admits it.
		s.requeueInterrupted(id)
		return
	}
	s.applyRunOutcome(id, outcome, runErr, false)
}

// requeueInterrupted returns a claimed task to queued after shutdown
// interrupted its run mid-flight.
func (s *Service) requeueInterrupted(id string) {
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return nil
		}
		if t.Status != StatusRunning || t.PendingApproval != nil {
			return nil
		}
		t.Status = StatusQueued
		t.UpdatedAt = s.now()
		items[id] = t
		return nil
	})
	if err != nil {
		s.logger.Warn("Queue: failed to requeue interrupted task %s: %v", id, err)
		return
	}
	s.logger.Info("Queue: shutdown interrupted task %s, left queued for restart", id)
}

func prompt(t Task) string {
	if t.Description != "" {
		return t.Title + "\n\n" + t.Description
	}
	return t.Title
}

// applyRunOutcome writes a run's outcome onto the task record. The
// check-then-write is atomic with respect to every other mutator: a stale
// outcome (task deleted, or re-suspended behind a newer approval gate) is
// discarded rather than overwritten onto newer state.
func (s *Service) applyRunOutcome(id string, outcome runner.Outcome, runErr error, fromResume bool) {
	var failed bool
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.Status != StatusRunning || t.PendingApproval != nil {
			return fmt.Errorf("%w: %s moved on (status=%s, gate open=%t)",
				ErrInvalidTransition, id, t.Status, t.PendingApproval != nil)
		}

		now := s.now()
		switch {
		case runErr != nil:
			t.Status = StatusFailed
			t.Error = runErr.Error()
			t.Result = ""
			failed = true
		case outcome.Suspended():
			t.PendingApproval = &PendingApproval{
				ThreadID:    outcome.Suspension.ThreadID,
				Context:     outcome.Suspension.Context,
				RequestedAt: now,
			}
		default:
			t.Status = StatusCompleted
			t.Result = outcome.Result
		}
		t.UpdatedAt = now
		items[id] = t
		return nil
	})
	if err != nil {
		if fromResume {
			// Stale resume: observability only, never an error.
			metrics.StaleResumesDiscarded.Inc()
			s.logger.Info("Gate: discarded stale resume outcome for %s: %v", id, err)
		} else {
			s.logger.Warn("Queue: dropped outcome for %s: %v", id, err)
		}
		return
	}
	if failed {
		metrics.TaskFailures.Inc()
		s.logger.Warn("Queue: task %s failed: %v", id, runErr)
	}
	s.hub.Notify(hub.TopicTasks)
}
