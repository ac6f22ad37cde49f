// Package session holds the durable record of one operator interaction
// sequence and the state machine that advances it. The entire session is
// a serializable value threaded through command handlers and persisted
// after every transition, which is what makes restarts resume exactly
// where the process left off.
package session

import (
	"errors"
	"fmt"
)

// Phase is the session's lifecycle position.
type Phase string

const (
	// PhaseIdle is a fresh session with no task.
	PhaseIdle Phase = "idle"
	// PhaseTaskSet has a task but no plan.
	PhaseTaskSet Phase = "task_set"
	// PhasePlanning is suspended waiting for the model's plan.
	PhasePlanning Phase = "planning"
	// PhasePlanReady has an approved plan with steps remaining.
	PhasePlanReady Phase = "plan_ready"
	// PhaseRunning is suspended waiting for the model's edits.
	PhaseRunning Phase = "running"
	// PhaseProposed holds a pending patch set awaiting review.
	PhaseProposed Phase = "proposed"
	// PhaseApplying is committing the approved patch set.
	PhaseApplying Phase = "applying"
	// PhaseApplied is terminal success: every plan step committed.
	PhaseApplied Phase = "applied"
	// PhaseFailed is a resumable failure with a retained reason.
	PhaseFailed Phase = "failed"
)

// Event triggers a phase transition. Transitions only happen on explicit
// operator commands or their completions; nothing advances implicitly.
type Event string

const (
	// EventSetTask records a new task on an idle or completed session.
	EventSetTask Event = "set_task"
	// EventPlanRequested suspends the session for plan generation.
	EventPlanRequested Event = "plan_requested"
	// EventPlanReceived stores the parsed plan.
	EventPlanReceived Event = "plan_received"
	// EventStepStarted suspends the session for step execution.
	EventStepStarted Event = "step_started"
	// EventPatchProposed stores a pending patch set and its dry-run diff.
	EventPatchProposed Event = "patch_proposed"
	// EventApproved begins committing the pending patch set.
	EventApproved Event = "approved"
	// EventApplySucceeded completes a commit; the step index advances.
	EventApplySucceeded Event = "apply_succeeded"
	// EventApplyFailed retains the per-file result map for inspection.
	EventApplyFailed Event = "apply_failed"
	// EventStepFailed records a model or parse failure during a step.
	EventStepFailed Event = "step_failed"
	// EventRetried discards the pending patch set and re-runs the step.
	EventRetried Event = "retried"
	// EventCancelled returns a suspended session to its prior stable phase.
	EventCancelled Event = "cancelled"
)

// ErrInvalidTransition is returned for an event the current phase does not accept.
var ErrInvalidTransition = errors.New("invalid session transition")

// ErrBusy is returned synchronously for a command issued while a model
// request is outstanding. It causes no state change.
var ErrBusy = errors.New("session busy: a request is outstanding")

// TransitionContext carries the facts the transition table needs beyond
// the event itself.
type TransitionContext struct {
	// StepsRemaining is true when the plan has uncommitted steps left
	// after the one that just completed.
	StepsRemaining bool
}

// Transition returns the phase that follows event from the given phase.
// Phases advance monotonically except for retry and failure recovery,
// which deliberately loop back without advancing the step index.
func Transition(from Phase, event Event, tc TransitionContext) (Phase, error) {
	switch event {
	case EventSetTask:
		if from == PhaseIdle || from == PhaseApplied {
			return PhaseTaskSet, nil
		}
	case EventPlanRequested:
		if from == PhaseTaskSet {
			return PhasePlanning, nil
		}
	case EventPlanReceived:
		if from == PhasePlanning {
			return PhasePlanReady, nil
		}
	case EventStepStarted:
		if from == PhasePlanReady || from == PhaseFailed {
			return PhaseRunning, nil
		}
	case EventPatchProposed:
		if from == PhaseRunning {
			return PhaseProposed, nil
		}
	case EventApproved:
		if from == PhaseProposed {
			return PhaseApplying, nil
		}
	case EventApplySucceeded:
		if from == PhaseApplying {
			if tc.StepsRemaining {
				return PhasePlanReady, nil
			}
			return PhaseApplied, nil
		}
	case EventApplyFailed:
		if from == PhaseApplying {
			return PhaseFailed, nil
		}
	case EventStepFailed:
		if from == PhaseRunning || from == PhasePlanning {
			return PhaseFailed, nil
		}
	case EventRetried:
		if from == PhaseProposed {
			return PhaseRunning, nil
		}
	case EventCancelled:
		switch from {
		case PhasePlanning:
			return PhaseTaskSet, nil
		case PhaseRunning:
			return PhasePlanReady, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
}

// Terminal reports whether the phase accepts no further work-advancing events.
func (p Phase) Terminal() bool { return p == PhaseApplied }
