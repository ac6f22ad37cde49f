// Package patch parses model response text into typed edit operations and
// provides the pure hunk-placement logic used when applying them.
package patch

import (
	"errors"
	"fmt"
)

// OpKind discriminates edit operation variants.
type OpKind int

const (
	// OpReplace overwrites an existing file with new whole-file content.
	OpReplace OpKind = iota
	// OpCreate writes a file that does not exist yet.
	OpCreate
	// OpHunks applies ordered unified-diff hunks to an existing file.
	OpHunks
	// OpDelete removes a file.
	OpDelete
)

// String returns a short human-readable tag for diff summaries.
func (k OpKind) String() string {
	switch k {
	case OpReplace:
		return "replace"
	case OpCreate:
		return "create"
	case OpHunks:
		return "hunks"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// LineKind classifies one line within a hunk body.
type LineKind int

const (
	// LineContext is an unchanged surrounding line (space prefix).
	LineContext LineKind = iota
	// LineRemove is a line removed from the original (minus prefix).
	LineRemove
	// LineAdd is a line added by the edit (plus prefix).
	LineAdd
)

// Line is one prefixed line of a hunk body.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is a unified-diff fragment: a declared original range, the new
// range, and the prefixed body lines. Context lines allow fuzzy
// relocation when the file has drifted since resolution.
type Hunk struct {
	// OrigStart and OrigLines describe the 1-based original line range.
	OrigStart int
	OrigLines int
	// NewStart and NewLines describe the post-edit range.
	NewStart int
	NewLines int

	Lines []Line
}

// OriginalSide returns the hunk's original-file lines (context + removed)
// in order, which is what placement matches against.
func (h *Hunk) OriginalSide() []Line {
	out := make([]Line, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Kind != LineAdd {
			out = append(out, l)
		}
	}
	return out
}

// Replacement returns the hunk's new-file lines (context + added) in order.
func (h *Hunk) Replacement() []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Kind != LineRemove {
			out = append(out, l.Text)
		}
	}
	return out
}

// LineDelta is the net line-count change this hunk causes.
func (h *Hunk) LineDelta() int {
	delta := 0
	for _, l := range h.Lines {
		switch l.Kind {
		case LineAdd:
			delta++
		case LineRemove:
			delta--
		}
	}
	return delta
}

// Operation is one self-contained edit: no residual dependency on the
// response text it was parsed from. Path is root-relative slash form.
type Operation struct {
	Kind    OpKind `json:"kind"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Hunks   []Hunk `json:"hunks,omitempty"`
}

// Set is the ordered list of operations derived from one model response.
type Set struct {
	// ResponseID identifies the response this set was parsed from.
	ResponseID string      `json:"response_id"`
	Ops        []Operation `json:"ops"`
}

// FormatError reports a structurally malformed response: an unterminated
// block, a bad hunk header, or a path escaping the working tree. Semantic
// applicability (does the context still match?) is judged at apply time.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed patch at line %d: %s", e.Line, e.Reason)
	}
	return "malformed patch: " + e.Reason
}

// ErrNoOperations is returned when a response contains no recognizable edit blocks.
var ErrNoOperations = errors.New("response contains no edit operations")
