package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"conductor/internal/filestore"
	"conductor/internal/hub"
	"conductor/internal/logging"
	"conductor/internal/metrics"
	"conductor/internal/task"
)

// ErrScheduleNotFound is returned when a schedule lookup fails.
var ErrScheduleNotFound = fmt.Errorf("schedule not found")

// TaskSpawner admits tasks synthesized by due schedules. Satisfied by
// *task.Service.
type TaskSpawner interface {
	Create(ctx context.Context, params task.CreateParams) (task.Task, error)
}

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is the period of the single process-wide timer that
	// scans active schedules for due-ness. Defaults to one second.
	TickInterval time.Duration
}

// Scheduler converts time/cron triggers into new tasks. One periodic tick
// scans all active schedules; a tick only enqueues, it never blocks on task
// execution.
type Scheduler struct {
	records *filestore.Collection[Schedule]
	spawner TaskSpawner
	hub     *hub.Hub
	logger  logging.Logger
	config  Config
	parser  cron.Parser
	now     func() time.Time

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// New creates a Scheduler. records must already be loaded.
func New(cfg Config, records *filestore.Collection[Schedule], spawner TaskSpawner, notifier *hub.Hub, logger logging.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Scheduler{
		records: records,
		spawner: spawner,
		hub:     notifier,
		logger:  logging.OrNop(logger),
		config:  cfg,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:     time.Now,
		stopped: make(chan struct{}),
	}
}

// SetClock overrides the time source. Exposed for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the periodic tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Tick(ctx)
			case <-s.stopped:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("Scheduler: started (tick=%s)", s.config.TickInterval)
}

// Stop halts the tick loop. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.wg.Wait()
		s.logger.Info("Scheduler: stopped")
	})
}

// CreateParams describes a proposed schedule.
type CreateParams struct {
	AgentID    string
	TaskPrompt string
	Type       Type
	IntervalMs int64
	Cron       string
}

// Create persists a new schedule unless an active one with the same
// signature already exists, in which case the existing match is returned
// and created is false. De-duplication happens here, at creation time, not
// at trigger time; paused and terminal schedules never block creation.
func (s *Scheduler) Create(_ context.Context, params CreateParams) (sched Schedule, created bool, err error) {
	now := s.now()
	candidate := Schedule{
		ID:         "schedule-" + uuid.New().String(),
		AgentID:    params.AgentID,
		TaskPrompt: params.TaskPrompt,
		Type:       params.Type,
		IntervalMs: params.IntervalMs,
		Cron:       params.Cron,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := candidate.Validate(); err != nil {
		return Schedule{}, false, err
	}
	if candidate.Type == TypeCron {
		if _, err := s.parser.Parse(candidate.Cron); err != nil {
			return Schedule{}, false, fmt.Errorf("schedule: invalid cron expression %q: %w", candidate.Cron, err)
		}
	}
	if next, nextErr := s.nextRun(&candidate, now); nextErr == nil {
		candidate.NextRunAt = next
	}

	signature := candidate.Signature()
	mutErr := s.records.Mutate(func(items map[string]Schedule) error {
		for _, existing := range items {
			if existing.Status == StatusActive && existing.Signature() == signature {
				sched = existing
				return nil
			}
		}
		items[candidate.ID] = candidate
		sched = candidate
		created = true
		return nil
	})
	if mutErr != nil {
		return Schedule{}, false, mutErr
	}
	if created {
		s.hub.Notify(hub.TopicSchedules)
		s.logger.Info("Scheduler: created schedule %s (agent=%s, type=%s)", sched.ID, sched.AgentID, sched.Type)
	} else {
		s.logger.Info("Scheduler: rejected duplicate of schedule %s", sched.ID)
	}
	return sched, created, nil
}

// Get returns the schedule with the given id.
func (s *Scheduler) Get(_ context.Context, id string) (Schedule, error) {
	sched, ok := s.records.Get(id)
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return sched, nil
}

// List returns all schedules, newest first.
func (s *Scheduler) List(_ context.Context) []Schedule {
	snap := s.records.Snapshot()
	schedules := make([]Schedule, 0, len(snap))
	for _, sched := range snap {
		schedules = append(schedules, sched)
	}
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].CreatedAt.After(schedules[j].CreatedAt)
		}
		return schedules[i].ID < schedules[j].ID
	})
	return schedules
}

// SetStatus pauses, resumes, or retires a schedule.
func (s *Scheduler) SetStatus(_ context.Context, id string, status Status) (Schedule, error) {
	if !status.IsValid() {
		return Schedule{}, fmt.Errorf("schedule: invalid status %q", status)
	}
	var updated Schedule
	err := s.records.Mutate(func(items map[string]Schedule) error {
		sched, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
		}
		sched.Status = status
		sched.UpdatedAt = s.now()
		items[id] = sched
		updated = sched
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.hub.Notify(hub.TopicSchedules)
	return updated, nil
}

// Delete removes the schedule record entirely.
func (s *Scheduler) Delete(_ context.Context, id string) error {
	err := s.records.Mutate(func(items map[string]Schedule) error {
		if _, ok := items[id]; !ok {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
		}
		delete(items, id)
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.Notify(hub.TopicSchedules)
	return nil
}

// Tick scans all active schedules and triggers the due ones. One schedule's
// trigger failure is isolated from the rest of the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	var due []Schedule
	s.records.ReadLocked(func(items map[string]Schedule) {
		for _, sched := range items {
			if sched.Status != StatusActive {
				continue
			}
			if s.isDue(&sched, now) {
				due = append(due, sched)
			}
		}
	})
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	changed := false
	for i := range due {
		if s.trigger(ctx, &due[i], now) {
			changed = true
		}
	}
	if changed {
		s.hub.Notify(hub.TopicSchedules)
	}
}

// isDue computes due-ness at now.
func (s *Scheduler) isDue(sched *Schedule, now time.Time) bool {
	switch sched.Type {
	case TypeInterval:
		if sched.LastRunAt.IsZero() {
			return true
		}
		return !now.Before(sched.LastRunAt.Add(sched.Interval()))
	case TypeCron:
		spec, err := s.parser.Parse(sched.Cron)
		if err != nil {
			return false
		}
		base := sched.LastRunAt
		if base.IsZero() {
			base = sched.CreatedAt
		}
		next := spec.Next(base)
		return next.After(sched.LastRunAt) && !next.After(now)
	default:
		return false
	}
}

// trigger synthesizes one queued task for a due schedule and advances its
// run bookkeeping. Returns true when the schedule record changed.
func (s *Scheduler) trigger(ctx context.Context, sched *Schedule, now time.Time) bool {
	_, err := s.spawner.Create(ctx, task.CreateParams{
		Title:       taskTitle(sched.TaskPrompt),
		Description: sched.TaskPrompt,
		AgentID:     sched.AgentID,
		Enqueue:     true,
	})
	if err != nil {
		s.logger.Warn("Scheduler: failed to spawn task for schedule %s: %v", sched.ID, err)
		return false
	}
	metrics.ScheduleTriggers.Inc()
	s.logger.Info("Scheduler: triggered schedule %s (agent=%s)", sched.ID, sched.AgentID)

	err = s.records.Mutate(func(items map[string]Schedule) error {
		current, ok := items[sched.ID]
		if !ok {
			return nil // deleted mid-tick; the spawned task stands
		}
		current.LastRunAt = now
		if next, nextErr := s.nextRun(&current, now); nextErr == nil {
			current.NextRunAt = next
		}
		current.UpdatedAt = now
		items[sched.ID] = current
		return nil
	})
	if err != nil {
		s.logger.Warn("Scheduler: failed to persist run bookkeeping for %s: %v", sched.ID, err)
		return false
	}
	return true
}

// nextRun computes the next fire time strictly after now.
func (s *Scheduler) nextRun(sched *Schedule, now time.Time) (time.Time, error) {
	switch sched.Type {
	case TypeInterval:
		return now.Add(sched.Interval()), nil
	case TypeCron:
		spec, err := s.parser.Parse(sched.Cron)
		if err != nil {
			return time.Time{}, err
		}
		return spec.Next(now), nil
	default:
		return time.Time{}, fmt.Errorf("schedule: invalid type %q", sched.Type)
	}
}

// taskTitle derives a short single-line title from the schedule's prompt.
// Truncation counts runes so a multi-byte prompt never yields invalid UTF-8.
func taskTitle(prompt string) string {
	const maxTitle = 80
	title := strings.Join(strings.Fields(prompt), " ")
	runes := []rune(title)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle-3]) + "..."
	}
	return title
}
