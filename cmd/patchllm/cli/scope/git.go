package scope

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// defaultBaseBranch is compared against for @git:branch when no base is named.
const defaultBaseBranch = "main"

// GitLister lists changed paths via go-git. It satisfies ChangeLister.
type GitLister struct {
	// Root is the directory to open the repository from. DetectDotGit
	// handles being invoked from a subdirectory of the worktree.
	Root string
}

// ChangedPaths returns the sorted set of paths in the selected change set.
// base is only consulted for the branch selector; empty means main.
// Deleted paths are included; the resolver warns when it cannot read them.
func (g *GitLister) ChangedPaths(ctx context.Context, selector, base string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(g.Root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", g.Root, err)
	}

	switch selector {
	case GitStaged:
		return statusPaths(repo, func(fs *git.FileStatus) bool {
			return fs.Staging != git.Unmodified && fs.Staging != git.Untracked
		})
	case GitUnstaged:
		// Tracked files with worktree modifications. Untracked files are
		// excluded to match diff --name-only.
		return statusPaths(repo, func(fs *git.FileStatus) bool {
			return fs.Worktree != git.Unmodified && fs.Worktree != git.Untracked &&
				fs.Staging != git.Untracked
		})
	case GitConflicts:
		return statusPaths(repo, func(fs *git.FileStatus) bool {
			return fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged
		})
	case GitLastCommit:
		return g.lastCommitPaths(repo)
	case GitBranch:
		if base == "" {
			base = defaultBaseBranch
		}
		return g.branchPaths(ctx, repo, base)
	default:
		return nil, fmt.Errorf("unknown git selector %q", selector)
	}
}

func statusPaths(repo *git.Repository, keep func(*git.FileStatus) bool) ([]string, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var paths []string
	for path, fileStatus := range status {
		if keep(fileStatus) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// lastCommitPaths returns the paths touched by HEAD. A parentless commit
// yields its full tree.
func (g *GitLister) lastCommitPaths(repo *git.Repository) ([]string, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD tree: %w", err)
	}

	if commit.NumParents() == 0 {
		return treePaths(tree)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read parent commit: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read parent tree: %w", err)
	}
	return diffPaths(parentTree, tree)
}

// branchPaths returns the paths changed on the current head relative to the
// merge base with the named branch, matching base...HEAD.
func (g *GitLister) branchPaths(_ context.Context, repo *git.Repository, base string) ([]string, error) {
	baseHash, err := repo.ResolveRevision(plumbing.Revision(base))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base branch %q: %w", base, err)
	}
	baseCommit, err := repo.CommitObject(*baseHash)
	if err != nil {
		return nil, fmt.Errorf("failed to read base commit: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	ancestor := baseCommit
	if bases, err := headCommit.MergeBase(baseCommit); err == nil && len(bases) > 0 {
		ancestor = bases[0]
	}
	ancestorTree, err := ancestor.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read merge-base tree: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD tree: %w", err)
	}
	return diffPaths(ancestorTree, headTree)
}

func diffPaths(from, to *object.Tree) ([]string, error) {
	changes, err := from.Diff(to)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	seen := map[string]bool{}
	var paths []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

func treePaths(tree *object.Tree) ([]string, error) {
	var paths []string
	err := tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// SplitBranchSelector separates a branch selector from its optional base
// name, as in "branch:release". Non-branch selectors pass through unchanged.
func SplitBranchSelector(selector string) (string, string) {
	if rest, ok := strings.CutPrefix(selector, GitBranch+":"); ok {
		return GitBranch, rest
	}
	return selector, ""
}
