// Package metrics exposes prometheus counters for the orchestration core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksDispatched counts tasks handed to the execution runner.
	TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_tasks_dispatched_total",
		Help: "Number of tasks dispatched to the execution runner.",
	})

	// TaskFailures counts tasks that terminated in failed status.
	TaskFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_task_failures_total",
		Help: "Number of tasks that reached failed status.",
	})

	// StaleResumesDiscarded counts background resume outcomes dropped by the
	// check-then-write rule.
	StaleResumesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_stale_resumes_discarded_total",
		Help: "Number of background resume outcomes discarded as stale.",
	})

	// ScheduleTriggers counts tasks synthesized by the scheduler.
	ScheduleTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_schedule_triggers_total",
		Help: "Number of tasks created by schedule triggers.",
	})

	// NotificationsDropped counts hub signals dropped because a subscriber
	// buffer was full.
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_notifications_dropped_total",
		Help: "Number of change notifications dropped on full subscriber buffers.",
	})
)
