package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/contextdoc"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
)

// PlanStep is one plan instruction plus the feedback accumulated across
// retries. Feedback is appended, never replaced: the model sees the full
// correction history when a step is re-run.
type PlanStep struct {
	Instruction string   `json:"instruction"`
	Feedback    []string `json:"feedback,omitempty"`
}

// CommittedSet records one approved and committed patch set.
type CommittedSet struct {
	ResponseID  string    `json:"response_id"`
	StepIndex   int       `json:"step_index"`
	Files       []string  `json:"files"`
	CommittedAt time.Time `json:"committed_at"`
}

// State is the complete durable session record. Everything needed to
// resume after a process restart lives here, including the pending
// unapproved patch set and its dry-run diff.
type State struct {
	ID   string `json:"id"`
	Task string `json:"task"`

	// ScopeDirective is the active scope in directive form.
	ScopeDirective string `json:"scope_directive,omitempty"`

	// Context is the assembled document snapshot sent with each step.
	Context *contextdoc.Document `json:"context,omitempty"`

	Plan      []PlanStep `json:"plan,omitempty"`
	StepIndex int        `json:"step_index"`

	// Pending is the proposed-but-unapproved patch set, with its diff
	// summary and per-file dry-run results.
	Pending        *patch.Set    `json:"pending,omitempty"`
	PendingResult  *apply.Result `json:"pending_result,omitempty"`
	PendingSummary string        `json:"pending_summary,omitempty"`

	History []CommittedSet `json:"history,omitempty"`

	Phase Phase `json:"phase"`

	// FailureReason is retained on PhaseFailed for operator inspection.
	FailureReason string `json:"failure_reason,omitempty"`

	// FailureResult retains the partial per-file map after a failed apply:
	// failed files were not committed, succeeded files were.
	FailureResult *apply.Result `json:"failure_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates an idle session with a fresh ID.
func NewState() *State {
	now := time.Now().UTC()
	return &State{
		ID:        uuid.NewString(),
		Phase:     PhaseIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentStep returns the active plan step, or nil past the end of the plan.
func (s *State) CurrentStep() *PlanStep {
	if s.StepIndex < 0 || s.StepIndex >= len(s.Plan) {
		return nil
	}
	return &s.Plan[s.StepIndex]
}

// StepsRemaining reports whether steps remain after the current one.
func (s *State) StepsRemaining() bool { return s.StepIndex+1 < len(s.Plan) }

// ClearPending drops the proposed patch set without advancing the step index.
func (s *State) ClearPending() {
	s.Pending = nil
	s.PendingResult = nil
	s.PendingSummary = ""
}
