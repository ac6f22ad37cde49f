// Package scope resolves scope directives into ordered, deduplicated file
// sets. A directive is either a named scope defined in configuration or an
// inline @kind:arg form; both parse into a Spec at this package's boundary
// so the rest of the system never branches on raw directive strings.
package scope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/patchllm/cli/cmd/patchllm/cli/validation"
)

// Kind discriminates the closed set of scope variants.
type Kind int

const (
	// KindStatic resolves a named include/exclude glob pair from configuration.
	KindStatic Kind = iota
	// KindDirectory resolves all files under an inline root with default patterns.
	KindDirectory
	// KindGit resolves changed paths from the version-control
	// collaborator; Arg selects which change set.
	KindGit
	// KindSearch resolves files whose content matches a text or regex query.
	KindSearch
	// KindRemote fetches one address and wraps it as a synthetic file.
	KindRemote
	// KindRecent resolves the most recently modified files under the root.
	KindRecent
	// KindRelated resolves a seed file plus its test files and same-stem siblings.
	KindRelated
	// KindTrace resolves the existing files named by an error traceback.
	KindTrace
)

// String returns the directive keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDirectory:
		return "dir"
	case KindGit:
		return "git"
	case KindSearch:
		return "search"
	case KindRemote:
		return "url"
	case KindRecent:
		return "recent"
	case KindRelated:
		return "related"
	case KindTrace:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Change-set selectors carried in a KindGit Spec's Arg.
const (
	GitStaged     = "staged"
	GitUnstaged   = "unstaged"
	GitLastCommit = "lastcommit"
	GitConflicts  = "conflicts"
	// GitBranch compares the current head against a base branch; an
	// explicit base follows a colon, as in "branch:release".
	GitBranch = "branch"
)

// ErrBadDirective is returned for malformed or unknown @-directives.
var ErrBadDirective = errors.New("malformed scope directive")

// Spec is a parsed, immutable scope specifier.
type Spec struct {
	Kind Kind

	// Arg is the kind-specific argument: scope name, directory path,
	// git selector, search query, remote address, seed file path, or
	// traceback text. Empty for recent.
	Arg string

	// Include and Exclude optionally narrow the resolved set; exclude
	// patterns dominate overlapping include patterns.
	Include []string
	Exclude []string
}

// Directive reconstructs the canonical directive string for display and persistence.
func (s Spec) Directive() string {
	switch s.Kind {
	case KindStatic:
		return s.Arg
	case KindRecent:
		return "@recent"
	case KindSearch, KindTrace:
		return fmt.Sprintf("@%s:%q", s.Kind, s.Arg)
	default:
		return "@" + s.Kind.String() + ":" + s.Arg
	}
}

// Parse turns a directive string into a Spec. Bare names become static
// scopes; @-prefixed strings dispatch on their kind keyword.
func Parse(directive string) (Spec, error) {
	d := strings.TrimSpace(directive)
	if d == "" {
		return Spec{}, fmt.Errorf("%w: empty directive", ErrBadDirective)
	}

	if !strings.HasPrefix(d, "@") {
		if err := validation.ValidateScopeName(d); err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrBadDirective, d)
		}
		return Spec{Kind: KindStatic, Arg: d}, nil
	}

	switch {
	case d == "@git":
		return Spec{Kind: KindGit, Arg: GitStaged}, nil
	case strings.HasPrefix(d, "@git:"):
		return parseGitSelector(strings.TrimPrefix(d, "@git:"))
	case d == "@recent":
		return Spec{Kind: KindRecent}, nil
	case strings.HasPrefix(d, "@dir:"):
		arg := strings.TrimSpace(strings.TrimPrefix(d, "@dir:"))
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: @dir requires a path", ErrBadDirective)
		}
		return Spec{Kind: KindDirectory, Arg: arg}, nil
	case strings.HasPrefix(d, "@url:"):
		arg := strings.TrimSpace(strings.TrimPrefix(d, "@url:"))
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: @url requires an address", ErrBadDirective)
		}
		return Spec{Kind: KindRemote, Arg: arg}, nil
	case strings.HasPrefix(d, "@search:"):
		arg := trimQuotes(strings.TrimSpace(strings.TrimPrefix(d, "@search:")))
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: @search requires a query", ErrBadDirective)
		}
		return Spec{Kind: KindSearch, Arg: arg}, nil
	case strings.HasPrefix(d, "@related:"):
		arg := strings.TrimSpace(strings.TrimPrefix(d, "@related:"))
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: @related requires a file path", ErrBadDirective)
		}
		return Spec{Kind: KindRelated, Arg: arg}, nil
	case strings.HasPrefix(d, "@error:"):
		arg := trimQuotes(strings.TrimSpace(strings.TrimPrefix(d, "@error:")))
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: @error requires a traceback", ErrBadDirective)
		}
		return Spec{Kind: KindTrace, Arg: arg}, nil
	default:
		return Spec{}, fmt.Errorf("%w: %q", ErrBadDirective, d)
	}
}

func parseGitSelector(raw string) (Spec, error) {
	sel := strings.TrimSpace(raw)
	switch {
	case sel == GitStaged, sel == GitUnstaged, sel == GitLastCommit, sel == GitConflicts, sel == GitBranch:
		return Spec{Kind: KindGit, Arg: sel}, nil
	case strings.HasPrefix(sel, GitBranch+":"):
		if strings.TrimPrefix(sel, GitBranch+":") == "" {
			return Spec{}, fmt.Errorf("%w: @git:branch requires a base branch name", ErrBadDirective)
		}
		return Spec{Kind: KindGit, Arg: sel}, nil
	default:
		return Spec{}, fmt.Errorf("%w: unknown git selector %q", ErrBadDirective, sel)
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
