package apply

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

func TestApply_WholeFileCommitMatchesPayload(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.go", "old content\n")
	a := &Applier{Root: root}

	payload := "package f\n\nfunc New() {}\n"
	set := &patch.Set{ResponseID: "r", Ops: []patch.Operation{
		{Kind: patch.OpReplace, Path: "f.go", Content: payload},
	}}

	result, err := a.Apply(context.Background(), set, Commit)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := readFile(t, root, "f.go"); got != payload {
		t.Fatalf("committed content = %q, want exact payload", got)
	}
	fr := result.Files["f.go"]
	if fr.Status != StatusApplied {
		t.Fatalf("status = %q, want applied", fr.Status)
	}
	if fr.Added != 3 || fr.Removed != 1 {
		t.Fatalf("diff counts = +%d −%d, want +3 −1", fr.Added, fr.Removed)
	}
}

func TestApply_CreateWritesNewFile(t *testing.T) {
	root := t.TempDir()
	a := &Applier{Root: root}

	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpCreate, Path: "pkg/new.go", Content: "package pkg\n"},
	}}
	if _, err := a.Apply(context.Background(), set, Commit); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := readFile(t, root, "pkg/new.go"); got != "package pkg\n" {
		t.Fatalf("created content = %q", got)
	}
}

func TestApply_DeleteMissingFileFailsNotFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", "package keep\n")
	a := &Applier{Root: root, BestEffort: true}

	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpDelete, Path: "absent.go"},
	}}
	result, err := a.Apply(context.Background(), set, Commit)
	if err == nil {
		t.Fatal("Apply() must fail for delete of an absent file")
	}
	fr := result.Files["absent.go"]
	if fr.Status != StatusFailed || !strings.Contains(fr.Error, "not found") {
		t.Fatalf("result = %+v, want failed with not-found error", fr)
	}
	if got := readFile(t, root, "keep.go"); got != "package keep\n" {
		t.Fatal("tree must be unmodified after failed delete")
	}
}

func TestApply_DeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gone.go", "a\nb\n")
	a := &Applier{Root: root}

	set := &patch.Set{Ops: []patch.Operation{{Kind: patch.OpDelete, Path: "gone.go"}}}
	result, err := a.Apply(context.Background(), set, Commit)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "gone.go")); !os.IsNotExist(err) {
		t.Fatal("file must be removed after committed delete")
	}
	if fr := result.Files["gone.go"]; fr.Removed != 2 {
		t.Fatalf("delete Removed = %d, want 2", fr.Removed)
	}
}

func TestApply_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.go", "old\n")
	a := &Applier{Root: root}

	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpReplace, Path: "f.go", Content: "new\n"},
		{Kind: patch.OpCreate, Path: "n.go", Content: "created\n"},
	}}
	result, err := a.Apply(context.Background(), set, DryRun)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := readFile(t, root, "f.go"); got != "old\n" {
		t.Fatal("dry run must not modify files")
	}
	if _, err := os.Stat(filepath.Join(root, "n.go")); !os.IsNotExist(err) {
		t.Fatal("dry run must not create files")
	}
	for _, p := range result.Order {
		if result.Files[p].Status != StatusStaged {
			t.Fatalf("dry-run status for %s = %q, want staged", p, result.Files[p].Status)
		}
	}
}

func TestApply_Hunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "m.go", "a\nb\nc\nd\ne\n")
	a := &Applier{Root: root}

	set := &patch.Set{Ops: []patch.Operation{{
		Kind: patch.OpHunks,
		Path: "m.go",
		Hunks: []patch.Hunk{
			{OrigStart: 1, OrigLines: 2, NewStart: 1, NewLines: 3, Lines: []patch.Line{
				{Kind: patch.LineContext, Text: "a"},
				{Kind: patch.LineAdd, Text: "a2"},
				{Kind: patch.LineContext, Text: "b"},
			}},
			{OrigStart: 4, OrigLines: 2, NewStart: 5, NewLines: 1, Lines: []patch.Line{
				{Kind: patch.LineRemove, Text: "d"},
				{Kind: patch.LineContext, Text: "e"},
			}},
		},
	}}}

	if _, err := a.Apply(context.Background(), set, Commit); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := readFile(t, root, "m.go"); got != "a\na2\nb\nc\ne\n" {
		t.Fatalf("hunk result = %q, want offsets adjusted across hunks", got)
	}
}

func TestApply_HunkConflictIsolatesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.go", "old\n")
	writeFile(t, root, "bad.go", "completely different content\n")
	a := &Applier{Root: root, BestEffort: true}

	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpReplace, Path: "good.go", Content: "new\n"},
		{Kind: patch.OpHunks, Path: "bad.go", Hunks: []patch.Hunk{{
			OrigStart: 1, OrigLines: 2, NewStart: 1, NewLines: 2,
			Lines: []patch.Line{
				{Kind: patch.LineContext, Text: "no such line"},
				{Kind: patch.LineRemove, Text: "nor this one"},
				{Kind: patch.LineAdd, Text: "replacement"},
			},
		}}},
	}}

	result, err := a.Apply(context.Background(), set, Commit)
	if err == nil {
		t.Fatal("Apply() must report the failed file")
	}
	if got := readFile(t, root, "good.go"); got != "new\n" {
		t.Fatal("best-effort commit must write independent successful files")
	}
	if got := readFile(t, root, "bad.go"); got != "completely different content\n" {
		t.Fatal("failed file must be left unchanged")
	}
	if !strings.Contains(result.Files["bad.go"].Error, "context does not match") {
		t.Fatalf("bad.go error = %q, want conflict", result.Files["bad.go"].Error)
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0] != "bad.go" {
		t.Fatalf("Failed() = %v, want [bad.go]", failed)
	}
}

func TestApply_AllOrNothingSkipsSuccessesOnFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.go", "old\n")
	a := &Applier{Root: root, BestEffort: false}

	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpReplace, Path: "good.go", Content: "new\n"},
		{Kind: patch.OpDelete, Path: "absent.go"},
	}}

	result, err := a.Apply(context.Background(), set, Commit)
	if err == nil {
		t.Fatal("Apply() must report the failure")
	}
	if got := readFile(t, root, "good.go"); got != "old\n" {
		t.Fatal("all-or-nothing commit must withhold sibling writes")
	}
	if result.Files["good.go"].Status != StatusSkipped {
		t.Fatalf("good.go status = %q, want skipped", result.Files["good.go"].Status)
	}
}

func TestApply_FuzzyHunkRelocation(t *testing.T) {
	root := t.TempDir()
	// Two lines inserted at the top since the diff was generated.
	writeFile(t, root, "f.go", "inserted1\ninserted2\nalpha\nbeta\ngamma\n")
	a := &Applier{Root: root, Fuzz: 1}

	set := &patch.Set{Ops: []patch.Operation{{
		Kind: patch.OpHunks, Path: "f.go",
		Hunks: []patch.Hunk{{
			OrigStart: 1, OrigLines: 3, NewStart: 1, NewLines: 3,
			Lines: []patch.Line{
				{Kind: patch.LineContext, Text: "alpha"},
				{Kind: patch.LineRemove, Text: "beta"},
				{Kind: patch.LineAdd, Text: "BETA"},
				{Kind: patch.LineContext, Text: "gamma"},
			},
		}},
	}}}

	if _, err := a.Apply(context.Background(), set, Commit); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := readFile(t, root, "f.go"); got != "inserted1\ninserted2\nalpha\nBETA\ngamma\n" {
		t.Fatalf("relocated hunk result = %q", got)
	}
}

func TestApply_EscapingPathFails(t *testing.T) {
	a := &Applier{Root: t.TempDir()}
	set := &patch.Set{Ops: []patch.Operation{
		{Kind: patch.OpCreate, Path: "../escape.go", Content: "x\n"},
	}}
	result, err := a.Apply(context.Background(), set, Commit)
	if err == nil {
		t.Fatal("Apply() must reject escaping paths")
	}
	if result.Files["../escape.go"].Status != StatusFailed {
		t.Fatal("escaping path must be a failed file result")
	}
}
