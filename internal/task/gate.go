package task

import (
	"context"
	"fmt"

	"conductor/internal/async"
	"conductor/internal/hub"
	"conductor/internal/metrics"
	"conductor/internal/runner"
)

// Decide applies a human decision to a task's open approval gate.
func (s *Service) Decide(ctx context.Context, id string, approved bool) error {
	if approved {
		return s.approve(ctx, id)
	}
	return s.reject(ctx, id)
}

// approve clears the gate, notifies observers immediately so they see it
// closing, then re-enters the runner at the checkpointed thread out-of-band.
// The resume may take arbitrarily long or suspend again, so the request that
// approved it never waits on it.
func (s *Service) approve(_ context.Context, id string) error {
	var resume runner.Request
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.PendingApproval == nil {
			return fmt.Errorf("%w: %s", ErrNoPendingApproval, id)
		}
		resume = runner.Request{
			TaskID:         t.ID,
			AgentID:        t.AgentID,
			SessionID:      t.SessionID,
			ResumeThreadID: t.PendingApproval.ThreadID,
		}
		t.PendingApproval = nil
		t.UpdatedAt = s.now()
		items[id] = t
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.Notify(hub.TopicTasks)
	s.logger.Info("Gate: approved task %s, resuming thread %s", id, resume.ResumeThreadID)

	s.resumeWG.Add(1)
	resumeCtx := s.resumeContext()
	async.Go(s.logger, "approval-resume", func() {
		defer s.resumeWG.Done()
		outcome, runErr := s.runner.Run(resumeCtx, resume)
		if runErr != nil && resumeCtx.Err() != nil {
			// Shutdown cut the resume short; the task stays running and
			// startup recovery re-runs it next process lifetime.
			s.logger.Info("Gate: shutdown interrupted resume of %s", id)
			return
		}
		s.applyRunOutcome(id, outcome, runErr, true)
	})
	return nil
}

// reject deletes the checkpoint synchronously before any state is applied:
// once reject returns, no delayed resume can ever be issued against that
// thread. The task fails with the canonical rejection error.
func (s *Service) reject(ctx context.Context, id string) error {
	err := s.records.Mutate(func(items map[string]Task) error {
		t, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.PendingApproval == nil {
			return fmt.Errorf("%w: %s", ErrNoPendingApproval, id)
		}
		if err := s.checkpoints.DeleteThread(ctx, t.PendingApproval.ThreadID); err != nil {
			return fmt.Errorf("delete checkpoint %s: %w", t.PendingApproval.ThreadID, err)
		}
		t.PendingApproval = nil
		t.Status = StatusFailed
		t.Error = "rejected by user"
		t.Result = ""
		t.UpdatedAt = s.now()
		items[id] = t
		return nil
	})
	if err != nil {
		return err
	}
	metrics.TaskFailures.Inc()
	s.hub.Notify(hub.TopicTasks)
	s.logger.Info("Gate: rejected task %s", id)
	return nil
}

// resumeContext returns the context background resumes run under. Detached
// from the approving request; bounded only by process lifetime.
func (s *Service) resumeContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
