package runner

import (
	"context"
	"fmt"
	"sync"
)

// Step is one pre-programmed outcome of a ScriptedRunner.
type Step struct {
	Outcome Outcome
	Err     error
	// Block, when non-nil, is received from before the step returns.
	// Lets tests hold a run in flight at a precise point.
	Block <-chan struct{}
}

// ScriptedRunner replays a fixed sequence of outcomes and records every
// request it saw. It stands in for the execution graph in tests and local
// dry runs.
type ScriptedRunner struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScripted creates a runner that returns the given steps in order.
func NewScripted(steps ...Step) *ScriptedRunner {
	return &ScriptedRunner{steps: steps}
}

// Append adds further steps to the script.
func (r *ScriptedRunner) Append(steps ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, steps...)
}

// Run pops the next scripted step. Running past the end of the script fails.
func (r *ScriptedRunner) Run(ctx context.Context, req Request) (Outcome, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	if len(r.steps) == 0 {
		r.mu.Unlock()
		return Outcome{}, fmt.Errorf("scripted runner: no step for request %q", req.TaskID)
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	r.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	return step.Outcome, step.Err
}

// Requests returns a copy of every request seen so far.
func (r *ScriptedRunner) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// RunCount returns how many times Run was called.
func (r *ScriptedRunner) RunCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
