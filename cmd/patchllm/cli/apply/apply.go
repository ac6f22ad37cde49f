// Package apply stages edit operations against the working tree and
// commits them with per-file atomicity. A failing file never corrupts the
// tree and, in best-effort mode, never blocks independent files.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patchllm/cli/cmd/patchllm/cli/logging"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
	"github.com/patchllm/cli/cmd/patchllm/cli/paths"
)

// ErrNotFound is returned when a delete or hunk edit targets an absent file.
var ErrNotFound = errors.New("file not found")

// ErrConflict is returned when a hunk's context cannot be located within
// the configured fuzz tolerance.
var ErrConflict = errors.New("hunk context does not match file content")

// Mode selects between diff-only and committing application.
type Mode int

const (
	// DryRun stages everything and reports diffs without touching the tree.
	DryRun Mode = iota
	// Commit writes staged results to the working tree.
	Commit
)

// Status describes the outcome for one file.
type Status string

const (
	// StatusStaged means the file's new content was computed (dry run).
	StatusStaged Status = "staged"
	// StatusApplied means the file was written to the working tree.
	StatusApplied Status = "applied"
	// StatusFailed means staging failed; the file was not modified.
	StatusFailed Status = "failed"
	// StatusSkipped means staging succeeded but commit was withheld
	// because a sibling file failed in all-or-nothing mode.
	StatusSkipped Status = "skipped"
)

// FileResult is the per-file outcome the session layer uses to decide
// whether to retry a failed subset.
type FileResult struct {
	Path    string       `json:"path"`
	Kind    patch.OpKind `json:"kind"`
	Status  Status       `json:"status"`
	Error   string       `json:"error,omitempty"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
	Diff    string       `json:"diff,omitempty"`

	staged  []byte
	deleted bool
	existed bool
}

// Result maps each target path to its outcome, preserving first-seen order.
type Result struct {
	Files map[string]*FileResult `json:"files"`
	Order []string               `json:"order"`
}

// Failed returns paths whose staging or commit failed.
func (r *Result) Failed() []string {
	var out []string
	for _, p := range r.Order {
		if r.Files[p].Status == StatusFailed {
			out = append(out, p)
		}
	}
	return out
}

// OK reports whether every file succeeded.
func (r *Result) OK() bool { return len(r.Failed()) == 0 }

// Summary renders the per-file diff stats for human review.
func (r *Result) Summary() string {
	var b strings.Builder
	for _, p := range r.Order {
		f := r.Files[p]
		switch f.Status {
		case StatusFailed:
			fmt.Fprintf(&b, "✗ %s (%s): %s\n", f.Path, f.Kind, f.Error)
		default:
			fmt.Fprintf(&b, "✓ %s (%s): +%d −%d\n", f.Path, f.Kind, f.Added, f.Removed)
		}
	}
	return b.String()
}

// Applier applies patch sets to the working tree under Root.
type Applier struct {
	Root string

	// Fuzz is the maximum mismatched context lines tolerated per hunk.
	Fuzz int

	// Workers bounds the staging pool. Zero or negative means 4.
	Workers int

	// BestEffort commits files that staged cleanly even when siblings
	// failed. When false a single failure withholds the whole commit.
	BestEffort bool
}

// Apply stages every operation, then commits per file if mode is Commit.
// The returned Result always covers every target path; the error is
// non-nil when any file failed.
func (a *Applier) Apply(ctx context.Context, set *patch.Set, mode Mode) (*Result, error) {
	start := time.Now()
	logCtx := logging.WithComponent(ctx, "apply")

	grouped := groupByPath(set.Ops)
	result := &Result{Files: make(map[string]*FileResult, len(grouped.order)), Order: grouped.order}

	// Files share no mutable state, so staging runs in a bounded pool.
	// All workers finish before the commit barrier; one file's failure
	// never cancels its siblings.
	workers := a.Workers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range grouped.order {
		ops := grouped.byPath[p]
		wg.Add(1)
		go func(path string, ops []patch.Operation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fr := a.stage(path, ops)
			mu.Lock()
			result.Files[path] = fr
			mu.Unlock()
		}(p, ops)
	}
	wg.Wait()

	if mode == Commit {
		a.commit(result)
	}

	failed := result.Failed()
	logging.LogDuration(logCtx, slog.LevelInfo, "patch set applied", start,
		slog.String("response_id", set.ResponseID),
		slog.Int("files", len(result.Order)),
		slog.Int("failed", len(failed)),
		slog.Bool("commit", mode == Commit),
	)
	if len(failed) > 0 {
		return result, fmt.Errorf("%d of %d files failed", len(failed), len(result.Order))
	}
	return result, nil
}

// stage computes a file's post-edit content without writing anything.
func (a *Applier) stage(relPath string, ops []patch.Operation) *FileResult {
	fr := &FileResult{Path: relPath, Kind: ops[len(ops)-1].Kind, Status: StatusStaged}

	abs, err := paths.Within(a.Root, relPath)
	if err != nil {
		return fr.fail(err)
	}

	original, readErr := os.ReadFile(abs) //nolint:gosec // path validated against root
	fr.existed = readErr == nil
	current := original

	for _, op := range ops {
		switch op.Kind {
		case patch.OpReplace, patch.OpCreate:
			current = []byte(op.Content)
		case patch.OpDelete:
			if !fr.existed {
				return fr.fail(fmt.Errorf("%w: %s", ErrNotFound, relPath))
			}
			fr.deleted = true
			current = nil
		case patch.OpHunks:
			if !fr.existed {
				return fr.fail(fmt.Errorf("%w: %s", ErrNotFound, relPath))
			}
			patched, err := a.applyHunks(current, op.Hunks)
			if err != nil {
				return fr.fail(err)
			}
			current = patched
		}
	}

	fr.staged = current
	fr.Added, fr.Removed, fr.Diff = diffLines(string(original), string(current))
	if fr.deleted {
		fr.Added, fr.Removed = 0, countLines(string(original))
		fr.Diff = ""
	}
	return fr
}

// applyHunks applies hunks in ascending original-offset order, shifting
// each subsequent hint by the net line delta of the hunks already applied.
func (a *Applier) applyHunks(content []byte, hunks []patch.Hunk) ([]byte, error) {
	ordered := make([]patch.Hunk, len(hunks))
	copy(ordered, hunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OrigStart < ordered[j].OrigStart })

	lines, trailingNewline := splitLines(string(content))
	delta := 0
	for _, h := range ordered {
		hint := h.OrigStart - 1 + delta
		idx, ok := patch.Locate(lines, h, hint, a.Fuzz)
		if !ok {
			return nil, fmt.Errorf("%w: hunk @@ -%d,%d @@", ErrConflict, h.OrigStart, h.OrigLines)
		}
		side := len(h.OriginalSide())
		replacement := h.Replacement()
		lines = append(lines[:idx:idx], append(replacement, lines[idx+side:]...)...)
		delta += h.LineDelta()
	}
	return []byte(joinLines(lines, trailingNewline)), nil
}

// commit atomically writes each staged file. In all-or-nothing mode any
// staging failure withholds every write; best-effort commits the successes.
func (a *Applier) commit(result *Result) {
	anyFailed := len(result.Failed()) > 0
	for _, p := range result.Order {
		fr := result.Files[p]
		if fr.Status == StatusFailed {
			continue
		}
		if anyFailed && !a.BestEffort {
			fr.Status = StatusSkipped
			continue
		}
		if err := a.commitFile(fr); err != nil {
			fr.fail(err)
			continue
		}
		fr.Status = StatusApplied
	}
}

func (a *Applier) commitFile(fr *FileResult) error {
	abs, err := paths.Within(a.Root, fr.Path)
	if err != nil {
		return err
	}
	if fr.deleted {
		if err := os.Remove(abs); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrNotFound, fr.Path)
			}
			return fmt.Errorf("failed to delete %s: %w", fr.Path, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", fr.Path, err)
	}
	// Atomic write: temp file in the target directory, then rename.
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".patchllm-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", fr.Path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(fr.staged); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", fr.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", fr.Path, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", fr.Path, err)
	}
	return nil
}

func (fr *FileResult) fail(err error) *FileResult {
	fr.Status = StatusFailed
	fr.Error = err.Error()
	return fr
}

type groupedOps struct {
	order  []string
	byPath map[string][]patch.Operation
}

func groupByPath(ops []patch.Operation) groupedOps {
	g := groupedOps{byPath: make(map[string][]patch.Operation)}
	for _, op := range ops {
		if _, ok := g.byPath[op.Path]; !ok {
			g.order = append(g.order, op.Path)
		}
		g.byPath[op.Path] = append(g.byPath[op.Path], op)
	}
	return g
}

func splitLines(content string) ([]string, bool) {
	if content == "" {
		return nil, true
	}
	trailing := strings.HasSuffix(content, "\n")
	if trailing {
		content = content[:len(content)-1]
	}
	return strings.Split(content, "\n"), trailing
}

func joinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline && out != "" {
		out += "\n"
	}
	return out
}

func countLines(s string) int {
	lines, _ := splitLines(s)
	return len(lines)
}
