package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/contextdoc"
	"github.com/patchllm/cli/cmd/patchllm/cli/llm"
	"github.com/patchllm/cli/cmd/patchllm/cli/logging"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
)

// ErrNoPlan is returned when a step command runs against an empty plan.
var ErrNoPlan = errors.New("session has no plan")

// ErrNoContext is returned when a model command runs before any context
// document has been loaded.
var ErrNoContext = errors.New("session has no context loaded")

// Controller drives one session through its phases. Every mutation is
// persisted before the controller accepts the next command, so killing
// the process mid-session loses at most the outstanding model reply.
type Controller struct {
	State     *State
	Store     *Store
	Resolver  *scope.Resolver
	Assembler *contextdoc.Assembler
	Parser    *patch.Parser
	Applier   *apply.Applier
	Requester llm.Requester

	// ScanSecrets enables a warning pass over freshly loaded context.
	ScanSecrets bool

	busy atomic.Bool
}

// acquire claims the controller for one command. Commands issued while a
// model request is outstanding fail with ErrBusy and change nothing.
func (c *Controller) acquire() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { c.busy.Store(false) }, nil
}

func (c *Controller) persist() error {
	c.State.UpdatedAt = time.Now().UTC()
	return c.Store.Save(c.State)
}

// transition applies event to the current phase and persists the result.
func (c *Controller) transition(event Event) error {
	next, err := Transition(c.State.Phase, event, TransitionContext{
		StepsRemaining: c.State.StepsRemaining(),
	})
	if err != nil {
		return err
	}
	c.State.Phase = next
	return c.persist()
}

// SetTask records the session goal. Setting a task on a completed session
// starts a fresh cycle: plan, history position, and pending edits reset.
func (c *Controller) SetTask(task string) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	if task == "" {
		return errors.New("task must not be empty")
	}
	next, err := Transition(c.State.Phase, EventSetTask, TransitionContext{})
	if err != nil {
		return err
	}
	c.State.Task = task
	c.State.Plan = nil
	c.State.StepIndex = 0
	c.State.FailureReason = ""
	c.State.FailureResult = nil
	c.State.ClearPending()
	c.State.Phase = next
	return c.persist()
}

// LoadContext resolves a scope directive and installs the resulting
// document. With add set, the resolved files are unioned into the current
// context instead of replacing it. Loading context does not change phase.
func (c *Controller) LoadContext(ctx context.Context, directive string, add bool) (*contextdoc.Document, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = logging.WithComponent(ctx, "session")
	spec, err := scope.Parse(directive)
	if err != nil {
		return nil, err
	}
	res, err := c.Resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	files := res.Files
	if add && c.State.Context != nil {
		files = scope.Union(c.State.Context.Files, res.Files)
		c.State.ScopeDirective = c.State.ScopeDirective + " + " + directive
	} else {
		c.State.ScopeDirective = directive
	}

	doc := c.Assembler.Build(files)
	doc.Warnings = append(res.Warnings, doc.Warnings...)
	if c.ScanSecrets {
		if err := doc.ScanForSecrets(); err != nil {
			return nil, fmt.Errorf("secret scan: %w", err)
		}
	}
	c.State.Context = doc
	logging.Info(ctx, "context loaded",
		"directive", directive, "files", len(doc.Files), "bytes", doc.Size)
	return doc, c.persist()
}

// ImportContext installs a previously exported document.
func (c *Controller) ImportContext(doc *contextdoc.Document) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	c.State.Context = doc
	c.State.ScopeDirective = "(imported)"
	return c.persist()
}

// Plan asks the model for a numbered plan and installs it. The session is
// persisted in the suspended phase before the request goes out, so a crash
// mid-request resumes as planning and can be cancelled or retried.
func (c *Controller) Plan(ctx context.Context) ([]PlanStep, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if c.State.Context == nil {
		return nil, ErrNoContext
	}
	if err := c.transition(EventPlanRequested); err != nil {
		return nil, err
	}

	ctx = logging.WithComponent(ctx, "session")
	start := time.Now()
	reply, err := c.Requester.Plan(ctx, c.State.Context.SourceTree(), c.State.Task)
	if err != nil {
		return nil, c.planFailed(ctx, err)
	}
	logging.LogDuration(ctx, slog.LevelInfo, "plan received", start, "session", c.State.ID)

	steps := ParsePlan(reply)
	if len(steps) == 0 {
		return nil, c.planFailed(ctx, errors.New("reply contains no numbered plan steps"))
	}
	c.State.Plan = steps
	c.State.StepIndex = 0
	c.State.FailureReason = ""
	c.State.FailureResult = nil
	if err := c.transition(EventPlanReceived); err != nil {
		return nil, err
	}
	return steps, nil
}

func (c *Controller) planFailed(ctx context.Context, cause error) error {
	if errors.Is(cause, context.Canceled) {
		if err := c.transition(EventCancelled); err != nil {
			return err
		}
		return cause
	}
	logging.Error(ctx, "planning failed", "error", cause)
	c.State.FailureReason = fmt.Sprintf("planning failed: %v", cause)
	if err := c.transition(EventStepFailed); err != nil {
		return err
	}
	return fmt.Errorf("planning failed: %w", cause)
}

// RunStep sends the current plan step to the model and stages the reply
// as a pending patch set with a dry-run diff. After a failure it re-runs
// the same step; the step index never advances here.
func (c *Controller) RunStep(ctx context.Context) (*apply.Result, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return c.runStep(ctx)
}

// Retry discards the pending patch set, records the rejection feedback on
// the current step, and re-runs it. Feedback accumulates across retries.
func (c *Controller) Retry(ctx context.Context, feedback string) (*apply.Result, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	step := c.State.CurrentStep()
	if step == nil {
		return nil, ErrNoPlan
	}
	if feedback != "" {
		step.Feedback = append(step.Feedback, feedback)
	}
	c.State.ClearPending()
	if err := c.transition(EventRetried); err != nil {
		return nil, err
	}
	return c.run(ctx)
}

func (c *Controller) runStep(ctx context.Context) (*apply.Result, error) {
	if c.State.CurrentStep() == nil {
		return nil, ErrNoPlan
	}
	if c.State.Context == nil {
		return nil, ErrNoContext
	}
	c.State.FailureReason = ""
	c.State.FailureResult = nil
	if err := c.transition(EventStepStarted); err != nil {
		return nil, err
	}
	return c.run(ctx)
}

// run executes the model round-trip for the current step. The session is
// already in PhaseRunning and persisted.
func (c *Controller) run(ctx context.Context) (*apply.Result, error) {
	ctx = logging.WithComponent(ctx, "session")
	step := c.State.CurrentStep()
	instruction := llm.RetryInstruction(step.Instruction, step.Feedback)

	start := time.Now()
	reply, err := c.Requester.Request(ctx, c.State.Context.Render(), instruction)
	if err != nil {
		return nil, c.stepFailed(ctx, fmt.Errorf("model request: %w", err))
	}
	logging.LogDuration(ctx, slog.LevelInfo, "step reply received", start,
		"session", c.State.ID, "step", c.State.StepIndex)

	set, err := c.Parser.Parse(uuid.NewString(), reply)
	if err != nil {
		return nil, c.stepFailed(ctx, fmt.Errorf("parse reply: %w", err))
	}

	result, err := c.Applier.Apply(ctx, set, apply.DryRun)
	if err != nil {
		return nil, c.stepFailed(ctx, fmt.Errorf("stage edits: %w", err))
	}

	c.State.Pending = set
	c.State.PendingResult = result
	c.State.PendingSummary = result.Summary()
	if err := c.transition(EventPatchProposed); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Controller) stepFailed(ctx context.Context, cause error) error {
	if errors.Is(cause, context.Canceled) {
		c.State.ClearPending()
		if err := c.transition(EventCancelled); err != nil {
			return err
		}
		return cause
	}
	logging.Error(ctx, "step failed", "step", c.State.StepIndex, "error", cause)
	c.State.ClearPending()
	c.State.FailureReason = cause.Error()
	if err := c.transition(EventStepFailed); err != nil {
		return err
	}
	return cause
}

// Approve commits the pending patch set. On success the step index
// advances by exactly one and the set moves to history; on failure the
// per-file result map is retained and the step index does not move.
func (c *Controller) Approve(ctx context.Context) (*apply.Result, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if c.State.Pending == nil {
		return nil, errors.New("no pending patch set to approve")
	}
	if err := c.transition(EventApproved); err != nil {
		return nil, err
	}

	ctx = logging.WithComponent(ctx, "session")
	set := c.State.Pending
	result, err := c.Applier.Apply(ctx, set, apply.Commit)
	if err != nil || !result.OK() {
		// The result still covers every file, so retain it: the per-file
		// statuses record which files committed before the failure.
		c.State.ClearPending()
		c.State.FailureReason = result.Summary()
		c.State.FailureResult = result
		if terr := c.transition(EventApplyFailed); terr != nil {
			return result, terr
		}
		return result, fmt.Errorf("apply failed: %s", result.Summary())
	}

	c.State.History = append(c.State.History, CommittedSet{
		ResponseID:  set.ResponseID,
		StepIndex:   c.State.StepIndex,
		Files:       result.Order,
		CommittedAt: time.Now().UTC(),
	})
	c.State.ClearPending()

	// Transition reads StepsRemaining before the index moves: the next
	// phase depends on whether steps remain after this one.
	if err := c.transition(EventApplySucceeded); err != nil {
		return result, err
	}
	c.State.StepIndex++
	if err := c.persist(); err != nil {
		return result, err
	}
	logging.Info(ctx, "patch set committed",
		"session", c.State.ID, "response", set.ResponseID, "files", len(result.Order))
	return result, nil
}

// Cancel returns a suspended session to its prior stable phase. It exists
// for resuming after a crash mid-request; a live request observes its
// context instead.
func (c *Controller) Cancel() error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()
	c.State.ClearPending()
	return c.transition(EventCancelled)
}
