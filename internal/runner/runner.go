// Package runner defines the contract between the orchestration core and the
// execution graph that actually calls the model and runs tools. The graph's
// internals live elsewhere; the core only needs its suspend/resume points,
// checkpoint identity, and completion/error signal.
package runner

import "context"

// Request describes one execution attempt for a task.
type Request struct {
	TaskID    string
	AgentID   string
	SessionID string
	// Prompt is the task text for a fresh run. Ignored when resuming.
	Prompt string
	// ResumeThreadID, when non-empty, resumes a suspended run from the
	// checkpoint stored under that thread.
	ResumeThreadID string
}

// Suspension is raised when capability policy marks a pending tool call as
// sensitive: the runner persists its resumable state under ThreadID and
// stops before executing the call.
type Suspension struct {
	// ThreadID addresses the checkpoint holding the suspended state.
	ThreadID string
	// Context describes the gated call for the human decision surface
	// (tool name, argument summary, and similar).
	Context map[string]string
}

// Outcome is the result of a run that did not fail outright.
// Exactly one of the two shapes holds: a terminal result (Suspension nil,
// Result possibly empty) or a suspension awaiting approval.
type Outcome struct {
	Result     string
	Suspension *Suspension
}

// Suspended reports whether the run stopped awaiting a human decision.
func (o Outcome) Suspended() bool { return o.Suspension != nil }

// Runner executes reasoning/tool steps for a task until completion, error,
// or a suspend request. Implementations must be idempotent at a
// conversation-turn granularity: re-running after a crash must not duplicate
// irreversible side effects beyond what the agent's own tools guard against.
type Runner interface {
	Run(ctx context.Context, req Request) (Outcome, error)
}

// CompleteRunner finishes every run immediately with a fixed result.
// Used when the binary runs without an execution graph attached.
type CompleteRunner struct {
	Result string
}

// Run returns the configured result without executing anything.
func (r CompleteRunner) Run(_ context.Context, _ Request) (Outcome, error) {
	return Outcome{Result: r.Result}, nil
}
