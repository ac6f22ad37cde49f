package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/contextdoc"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
)

type fakeRequester struct {
	planReply string
	replies   []string
	err       error

	requests     int
	instructions []string
}

func (f *fakeRequester) Plan(ctx context.Context, outline, goal string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.planReply, nil
}

func (f *fakeRequester) Request(ctx context.Context, contextDoc, instruction string) (string, error) {
	f.instructions = append(f.instructions, instruction)
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[f.requests%len(f.replies)]
	f.requests++
	return reply, nil
}

func newTestController(t *testing.T, req *fakeRequester) (*Controller, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("old\n"), 0o644); err != nil {
		t.Fatalf("seeding worktree: %v", err)
	}
	c := &Controller{
		State:     NewState(),
		Store:     NewStore(t.TempDir()),
		Resolver:  &scope.Resolver{Root: root},
		Assembler: &contextdoc.Assembler{},
		Parser:    &patch.Parser{Root: root},
		Applier:   &apply.Applier{Root: root},
		Requester: req,
	}
	return c, root
}

const editReply = "<file_path:main.go>\n```go\nnew\n```\n"

func TestControllerFullCycle(t *testing.T) {
	req := &fakeRequester{
		planReply: "1. Rewrite main.go.\n2. Rewrite main.go again.",
		replies:   []string{editReply},
	}
	c, root := newTestController(t, req)
	ctx := context.Background()

	if err := c.SetTask("rewrite everything"); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	if c.State.Phase != PhaseTaskSet {
		t.Fatalf("phase = %s, want task_set", c.State.Phase)
	}

	doc, err := c.LoadContext(ctx, "@dir:.", false)
	if err != nil {
		t.Fatalf("LoadContext failed: %v", err)
	}
	if len(doc.Files) != 1 {
		t.Fatalf("context has %d files, want 1", len(doc.Files))
	}

	steps, err := c.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(steps) != 2 || c.State.Phase != PhasePlanReady {
		t.Fatalf("after Plan: %d steps, phase %s", len(steps), c.State.Phase)
	}

	result, err := c.RunStep(ctx)
	if err != nil {
		t.Fatalf("RunStep failed: %v", err)
	}
	if c.State.Phase != PhaseProposed || c.State.Pending == nil {
		t.Fatalf("after RunStep: phase %s, pending %v", c.State.Phase, c.State.Pending)
	}
	if !result.OK() {
		t.Fatalf("dry run reported failures: %s", result.Summary())
	}
	if got, _ := os.ReadFile(filepath.Join(root, "main.go")); string(got) != "old\n" {
		t.Fatalf("dry run modified the tree: %q", got)
	}

	if _, err := c.Approve(ctx); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if c.State.StepIndex != 1 {
		t.Errorf("StepIndex = %d after first approve, want 1", c.State.StepIndex)
	}
	if c.State.Phase != PhasePlanReady {
		t.Errorf("phase = %s after first approve, want plan_ready", c.State.Phase)
	}
	if got, _ := os.ReadFile(filepath.Join(root, "main.go")); string(got) != "new\n" {
		t.Fatalf("approve did not commit: %q", got)
	}
	if len(c.State.History) != 1 || c.State.History[0].StepIndex != 0 {
		t.Fatalf("history = %+v", c.State.History)
	}

	if _, err := c.RunStep(ctx); err != nil {
		t.Fatalf("second RunStep failed: %v", err)
	}
	if _, err := c.Approve(ctx); err != nil {
		t.Fatalf("second Approve failed: %v", err)
	}
	if c.State.Phase != PhaseApplied {
		t.Errorf("phase = %s after final approve, want applied", c.State.Phase)
	}
	if c.State.StepIndex != 2 {
		t.Errorf("StepIndex = %d after final approve, want 2", c.State.StepIndex)
	}

	// The record on disk matches the in-memory state.
	loaded, err := c.Store.Load(c.State.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Phase != PhaseApplied || loaded.StepIndex != 2 {
		t.Errorf("persisted state: phase %s, step %d", loaded.Phase, loaded.StepIndex)
	}
}

func TestControllerRetryKeepsStepIndex(t *testing.T) {
	req := &fakeRequester{
		planReply: "1. Rewrite main.go.",
		replies:   []string{editReply},
	}
	c, _ := newTestController(t, req)
	ctx := context.Background()

	if err := c.SetTask("rewrite"); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	if _, err := c.LoadContext(ctx, "@dir:.", false); err != nil {
		t.Fatalf("LoadContext failed: %v", err)
	}
	if _, err := c.Plan(ctx); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := c.RunStep(ctx); err != nil {
		t.Fatalf("RunStep failed: %v", err)
	}

	firstPending := c.State.Pending.ResponseID
	if _, err := c.Retry(ctx, "use a different name"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if c.State.StepIndex != 0 {
		t.Errorf("StepIndex = %d after retry, want 0", c.State.StepIndex)
	}
	if c.State.Phase != PhaseProposed {
		t.Errorf("phase = %s after retry, want proposed", c.State.Phase)
	}
	if c.State.Pending.ResponseID == firstPending {
		t.Error("retry did not replace the pending patch set")
	}

	step := c.State.CurrentStep()
	if len(step.Feedback) != 1 || step.Feedback[0] != "use a different name" {
		t.Errorf("feedback = %v", step.Feedback)
	}
	last := req.instructions[len(req.instructions)-1]
	if last == step.Instruction {
		t.Error("retry instruction did not include the feedback")
	}

	// A second retry accumulates rather than replaces.
	if _, err := c.Retry(ctx, "and keep the comment"); err != nil {
		t.Fatalf("second Retry failed: %v", err)
	}
	if len(c.State.CurrentStep().Feedback) != 2 {
		t.Errorf("feedback = %v, want two entries", c.State.CurrentStep().Feedback)
	}
}

func TestControllerStepFailureIsResumable(t *testing.T) {
	req := &fakeRequester{
		planReply: "1. Rewrite main.go.",
		replies:   []string{editReply},
		err:       errors.New("boom"),
	}
	c, _ := newTestController(t, req)
	ctx := context.Background()

	if err := c.SetTask("rewrite"); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	if _, err := c.LoadContext(ctx, "@dir:.", false); err != nil {
		t.Fatalf("LoadContext failed: %v", err)
	}
	// Install a plan without the model.
	c.State.Plan = ParsePlan(req.planReply)
	c.State.Phase = PhasePlanReady

	if _, err := c.RunStep(ctx); err == nil {
		t.Fatal("expected RunStep to fail")
	}
	if c.State.Phase != PhaseFailed || c.State.FailureReason == "" {
		t.Fatalf("after failure: phase %s, reason %q", c.State.Phase, c.State.FailureReason)
	}

	// The same step can be re-run once the fault clears.
	req.err = nil
	if _, err := c.RunStep(ctx); err != nil {
		t.Fatalf("re-run after failure: %v", err)
	}
	if c.State.Phase != PhaseProposed || c.State.StepIndex != 0 {
		t.Fatalf("after re-run: phase %s, step %d", c.State.Phase, c.State.StepIndex)
	}
	if c.State.FailureReason != "" {
		t.Errorf("failure reason not cleared: %q", c.State.FailureReason)
	}
}

func TestControllerApproveRetainsFailedApplyResult(t *testing.T) {
	c, root := newTestController(t, &fakeRequester{})
	c.Applier = &apply.Applier{Root: root, BestEffort: true}
	ctx := context.Background()

	// One file creates cleanly, the other carries a hunk whose context
	// does not exist in the tree.
	reply := "<file_path:good.go>\n```go\npackage good\n```\n" +
		"<file_path:main.go>\n```diff\n@@ -1,1 +1,1 @@\n-no such line\n+replacement\n```\n"
	set, err := c.Parser.Parse("resp-1", reply)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c.State.Task = "rewrite"
	c.State.Plan = ParsePlan("1. Rewrite main.go.")
	c.State.Phase = PhaseProposed
	c.State.Pending = set

	result, err := c.Approve(ctx)
	if err == nil {
		t.Fatal("expected Approve to fail for the bad hunk")
	}
	if result == nil {
		t.Fatal("Approve returned no result for the failed apply")
	}
	if c.State.Phase != PhaseFailed {
		t.Errorf("phase = %s, want failed", c.State.Phase)
	}

	// The per-file outcomes survive the failure so a retry can target
	// only what did not commit.
	fr := c.State.FailureResult
	if fr == nil {
		t.Fatal("FailureResult not retained after partial apply failure")
	}
	if got := fr.Files["good.go"].Status; got != apply.StatusApplied {
		t.Errorf("good.go status = %s, want applied", got)
	}
	if got := fr.Files["main.go"].Status; got != apply.StatusFailed {
		t.Errorf("main.go status = %s, want failed", got)
	}
	if c.State.FailureReason == "" {
		t.Error("failure reason not recorded")
	}

	if got, _ := os.ReadFile(filepath.Join(root, "good.go")); string(got) != "package good\n" {
		t.Fatalf("good.go not committed in best-effort mode: %q", got)
	}
	if got, _ := os.ReadFile(filepath.Join(root, "main.go")); string(got) != "old\n" {
		t.Fatalf("failed file was modified: %q", got)
	}

	if c.State.Pending != nil {
		t.Error("pending set not cleared after apply failure")
	}
	if c.State.StepIndex != 0 {
		t.Errorf("StepIndex = %d after failed approve, want 0", c.State.StepIndex)
	}
	if len(c.State.History) != 0 {
		t.Errorf("history = %+v, want empty", c.State.History)
	}
}

func TestControllerRejectsOutOfPhaseCommands(t *testing.T) {
	c, _ := newTestController(t, &fakeRequester{})
	ctx := context.Background()

	if _, err := c.Approve(ctx); err == nil {
		t.Error("Approve on a fresh session should fail")
	}
	if _, err := c.RunStep(ctx); !errors.Is(err, ErrNoPlan) {
		t.Errorf("RunStep on a fresh session = %v, want ErrNoPlan", err)
	}
	if _, err := c.Plan(ctx); !errors.Is(err, ErrNoContext) {
		t.Errorf("Plan without context = %v, want ErrNoContext", err)
	}
}

func TestControllerCancelledRequestRestoresPhase(t *testing.T) {
	req := &fakeRequester{
		planReply: "1. Rewrite main.go.",
		replies:   []string{editReply},
	}
	c, _ := newTestController(t, req)
	ctx := context.Background()

	if err := c.SetTask("rewrite"); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	if _, err := c.LoadContext(ctx, "@dir:.", false); err != nil {
		t.Fatalf("LoadContext failed: %v", err)
	}
	if _, err := c.Plan(ctx); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	req.err = context.Canceled
	if _, err := c.RunStep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunStep = %v, want context.Canceled", err)
	}
	if c.State.Phase != PhasePlanReady {
		t.Errorf("phase = %s after cancelled step, want plan_ready", c.State.Phase)
	}
	if c.State.FailureReason != "" {
		t.Errorf("cancellation recorded as failure: %q", c.State.FailureReason)
	}
}
