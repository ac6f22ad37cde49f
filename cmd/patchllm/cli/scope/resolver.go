package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/patchllm/cli/cmd/patchllm/cli/logging"
	"github.com/patchllm/cli/cmd/patchllm/cli/paths"
)

// ErrUnknownScope is returned when a static scope name has no definition.
var ErrUnknownScope = errors.New("unknown scope")

// ErrUnreachableRoot is returned when a scope's root path cannot be walked.
var ErrUnreachableRoot = errors.New("scope root unreachable")

// ResolutionError wraps any failure to resolve a directive. Resolution is
// all-or-nothing: on error no file list is returned.
type ResolutionError struct {
	Directive string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve scope %q: %v", e.Directive, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// recentFileCount is how many files @recent resolves to.
const recentFileCount = 5

// defaultExcludeExtensions are skipped in every resolution unless a file
// is named explicitly. Mirrors what is never useful as model context:
// binaries, media, lockfiles, local state.
var defaultExcludeExtensions = map[string]bool{
	".log": true, ".lock": true, ".env": true, ".bak": true, ".tmp": true,
	".swp": true, ".swo": true, ".db": true, ".sqlite3": true,
	".pyc": true, ".pyo": true, ".pyd": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".mp3": true, ".mp4": true, ".mov": true,
	".avi": true, ".pdf": true,
	".o": true, ".so": true, ".dll": true, ".exe": true,
	".meta": true, ".ds_store": true,
}

// skipDirs are never descended into during walks.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "dist": true, "build": true, ".patchllm": true,
}

// ResolvedFile is one file produced by scope resolution. Content and hash
// are captured at resolution time so later working-tree drift is detectable.
type ResolvedFile struct {
	// Path is canonical: root-relative with forward slashes. Remote files
	// use their address as the path.
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Hash    string `json:"hash"`
	Order   int    `json:"order"`

	// MatchedLines holds 1-based line numbers that matched a search query.
	// Metadata for prioritization only; never filters.
	MatchedLines []int `json:"matched_lines,omitempty"`
}

// HashContent returns the canonical content hash used across the system.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Resolution is a complete, ordered, deduplicated resolution result.
type Resolution struct {
	Files    []ResolvedFile
	Warnings []string
}

// Definition is a named scope from configuration.
type Definition struct {
	Root    string
	Include []string
	Exclude []string
}

// ChangeLister is the version-control collaborator. selector is one of the
// Git* constants; base names the comparison branch and applies only to the
// branch selector.
type ChangeLister interface {
	ChangedPaths(ctx context.Context, selector, base string) ([]string, error)
}

// Fetcher is the network collaborator for remote scopes.
type Fetcher interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// Resolver resolves parsed Specs against a working tree.
type Resolver struct {
	// Root is the working-tree root all relative paths resolve against.
	Root string

	// Definitions maps static scope names to their glob pairs.
	Definitions map[string]Definition

	// MaxFileSize skips larger files with a warning. Zero means no cap.
	MaxFileSize int64

	Git     ChangeLister
	Fetcher Fetcher
}

// Resolve turns a Spec into a complete Resolution or fails with a
// *ResolutionError. It never returns a partial file list.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (*Resolution, error) {
	start := time.Now()
	logCtx := logging.WithComponent(ctx, "scope")

	res, err := r.resolve(ctx, spec)
	if err != nil {
		return nil, &ResolutionError{Directive: spec.Directive(), Err: err}
	}

	logging.LogDuration(logCtx, slog.LevelDebug, "scope resolved", start,
		"directive", spec.Directive(),
		"files", len(res.Files),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, spec Spec) (*Resolution, error) {
	switch spec.Kind {
	case KindStatic:
		def, ok := r.Definitions[spec.Arg]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScope, spec.Arg)
		}
		include := def.Include
		if len(spec.Include) > 0 {
			include = spec.Include
		}
		exclude := append(append([]string{}, def.Exclude...), spec.Exclude...)
		return r.walk(def.Root, include, exclude, nil)

	case KindDirectory:
		return r.walk(spec.Arg, spec.Include, spec.Exclude, nil)

	case KindGit:
		return r.resolveGit(ctx, spec)

	case KindSearch:
		return r.resolveSearch(spec)

	case KindRemote:
		return r.resolveRemote(ctx, spec)

	case KindRecent:
		return r.resolveRecent(spec)

	case KindRelated:
		return r.resolveRelated(spec)

	case KindTrace:
		return r.resolveTrace(spec)

	default:
		return nil, fmt.Errorf("%w: unsupported kind %v", ErrBadDirective, spec.Kind)
	}
}

// walk resolves files below subdir (relative to the resolver root, empty for
// the root itself), applying include/exclude globs against root-relative
// slash paths. Exclude always dominates include.
func (r *Resolver) walk(subdir string, include, exclude []string, match func(path string, content []byte) []int) (*Resolution, error) {
	base := r.Root
	if subdir != "" && subdir != "." {
		abs, err := paths.Within(r.Root, subdir)
		if err != nil {
			return nil, err
		}
		base = abs
	}
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnreachableRoot, base)
	}
	if len(include) == 0 {
		include = []string{"**"}
	}

	res := &Resolution{}
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnreachableRoot, p)
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil //nolint:nilerr // outside the walk base, ignore
		}
		rel = filepath.ToSlash(rel)

		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}
		if defaultExcludeExtensions[strings.ToLower(filepath.Ext(rel))] {
			return nil
		}

		if r.MaxFileSize > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > r.MaxFileSize {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("skipped %s: %d bytes exceeds size cap %d", rel, fi.Size(), r.MaxFileSize))
				return nil
			}
		}

		content, err := os.ReadFile(p) //nolint:gosec // path is under the walked root
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped %s: %v", rel, err))
			return nil
		}

		var matched []int
		if match != nil {
			matched = match(rel, content)
			if matched == nil {
				return nil
			}
		}

		canonical, err := paths.Normalize(r.Root, p)
		if err != nil {
			return nil //nolint:nilerr // unreachable for walked paths
		}
		res.Files = append(res.Files, ResolvedFile{
			Path:         canonical,
			Content:      content,
			Hash:         HashContent(content),
			MatchedLines: matched,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	for i := range res.Files {
		res.Files[i].Order = i
	}
	return res, nil
}

func (r *Resolver) resolveSearch(spec Spec) (*Resolution, error) {
	re, err := regexp.Compile(spec.Arg)
	if err != nil {
		// Fall back to a literal scan for queries that are not valid regexes.
		re = regexp.MustCompile(regexp.QuoteMeta(spec.Arg))
	}
	match := func(_ string, content []byte) []int {
		var lines []int
		for i, line := range strings.Split(string(content), "\n") {
			if re.MatchString(line) {
				lines = append(lines, i+1)
			}
		}
		return lines
	}
	return r.walk("", spec.Include, spec.Exclude, match)
}

func (r *Resolver) resolveGit(ctx context.Context, spec Spec) (*Resolution, error) {
	if r.Git == nil {
		return nil, errors.New("no version-control collaborator configured")
	}
	selector, base := SplitBranchSelector(spec.Arg)
	changed, err := r.Git.ChangedPaths(ctx, selector, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed paths: %w", err)
	}
	return r.readListed(spec, changed), nil
}

// readListed loads a collaborator-provided path list from the working tree.
// Paths that no longer exist, deletions included, become warnings.
func (r *Resolver) readListed(spec Spec, listed []string) *Resolution {
	res := &Resolution{}
	order := 0
	for _, lp := range listed {
		rel := filepath.ToSlash(lp)
		if matchAny(spec.Exclude, rel) {
			continue
		}
		abs, err := paths.Within(r.Root, lp)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped %s: %v", lp, err))
			continue
		}
		content, err := os.ReadFile(abs) //nolint:gosec // path validated against root
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped %s: %v", rel, err))
			continue
		}
		res.Files = append(res.Files, ResolvedFile{
			Path:    rel,
			Content: content,
			Hash:    HashContent(content),
			Order:   order,
		})
		order++
	}
	return res
}

func (r *Resolver) resolveRemote(ctx context.Context, spec Spec) (*Resolution, error) {
	if r.Fetcher == nil {
		return nil, errors.New("no network collaborator configured")
	}
	content, err := r.Fetcher.Fetch(ctx, spec.Arg)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", spec.Arg, err)
	}
	return &Resolution{Files: []ResolvedFile{{
		Path:    spec.Arg,
		Content: content,
		Hash:    HashContent(content),
	}}}, nil
}

func (r *Resolver) resolveRecent(spec Spec) (*Resolution, error) {
	res, err := r.walk("", spec.Include, spec.Exclude, nil)
	if err != nil {
		return nil, err
	}
	type stamped struct {
		f  ResolvedFile
		mt time.Time
	}
	ranked := make([]stamped, 0, len(res.Files))
	for _, f := range res.Files {
		fi, err := os.Stat(filepath.Join(r.Root, filepath.FromSlash(f.Path)))
		if err != nil {
			continue
		}
		ranked = append(ranked, stamped{f: f, mt: fi.ModTime()})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].mt.After(ranked[j].mt) })
	if len(ranked) > recentFileCount {
		ranked = ranked[:recentFileCount]
	}
	out := &Resolution{Warnings: res.Warnings}
	for i, s := range ranked {
		s.f.Order = i
		out.Files = append(out.Files, s.f)
	}
	return out, nil
}

// resolveRelated starts from a seed file and adds its test counterparts and
// same-stem siblings with other extensions. Missing candidates are skipped
// silently; a missing seed fails the resolution.
func (r *Resolver) resolveRelated(spec Spec) (*Resolution, error) {
	seed := filepath.ToSlash(spec.Arg)
	if _, err := paths.Within(r.Root, seed); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(r.Root, filepath.FromSlash(seed))); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachableRoot, seed)
	}

	dir := filepath.ToSlash(filepath.Dir(seed))
	if dir == "." {
		dir = ""
	}
	ext := filepath.Ext(seed)
	stem := strings.TrimSuffix(filepath.Base(seed), ext)

	candidates := []string{seed}
	for _, name := range []string{
		stem + "_test" + ext,
		"test_" + stem + ext,
	} {
		candidates = append(candidates, joinRel(dir, name), joinRel("tests", name))
	}

	// Same-stem siblings cover header/source and template/handler pairings.
	if entries, err := os.ReadDir(filepath.Join(r.Root, filepath.FromSlash(dir))); err == nil {
		for _, e := range entries {
			if e.IsDir() || e.Name() == filepath.Base(seed) {
				continue
			}
			if strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) == stem {
				candidates = append(candidates, joinRel(dir, e.Name()))
			}
		}
	}

	return r.readExisting(spec, candidates), nil
}

// traceFileRes extract file references from traceback text: quoted
// interpreter frames and path:line mentions.
var traceFileRes = []*regexp.Regexp{
	regexp.MustCompile(`File "([^"]+)"`),
	regexp.MustCompile(`([\w./\\-]+\.\w+):\d+`),
}

// resolveTrace keeps the files a traceback names that exist under the root.
func (r *Resolver) resolveTrace(spec Spec) (*Resolution, error) {
	var candidates []string
	for _, re := range traceFileRes {
		for _, m := range re.FindAllStringSubmatch(spec.Arg, -1) {
			candidates = append(candidates, filepath.ToSlash(m[1]))
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no file references found in traceback", ErrBadDirective)
	}
	return r.readExisting(spec, candidates), nil
}

// readExisting loads the candidate paths that exist under the root, keeping
// first-seen order and dropping the rest without warnings.
func (r *Resolver) readExisting(spec Spec, candidates []string) *Resolution {
	res := &Resolution{}
	seen := map[string]bool{}
	order := 0
	for _, c := range candidates {
		rel := filepath.ToSlash(c)
		if seen[rel] || matchAny(spec.Exclude, rel) {
			continue
		}
		seen[rel] = true
		abs, err := paths.Within(r.Root, rel)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		content, err := os.ReadFile(abs) //nolint:gosec // path validated against root
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped %s: %v", rel, err))
			continue
		}
		res.Files = append(res.Files, ResolvedFile{
			Path:    rel,
			Content: content,
			Hash:    HashContent(content),
			Order:   order,
		})
		order++
	}
	return res
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
