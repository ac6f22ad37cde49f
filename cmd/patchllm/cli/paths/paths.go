// Package paths resolves working-tree locations and guards against
// path escapes when patch targets come from untrusted model output.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path would resolve outside the working-tree root.
var ErrOutsideRoot = errors.New("path escapes working-tree root")

// WorktreeRoot returns the root of the enclosing working tree, found by
// walking up from the current directory until a .git entry or a
// patchllm.toml file is found. Falls back to the current directory.
func WorktreeRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	probe := dir
	for {
		for _, marker := range []string{".git", "patchllm.toml"} {
			if _, err := os.Stat(filepath.Join(probe, marker)); err == nil {
				return probe, nil
			}
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return dir, nil
		}
		probe = parent
	}
}

// Within resolves rel against root and verifies the result stays inside root.
// rel may use either slash style; the returned path is absolute and clean.
func Within(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		// Absolute targets are accepted only when they already live under root.
		relToRoot, err := filepath.Rel(root, cleaned)
		if err != nil || strings.HasPrefix(relToRoot, "..") {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
		}
		return cleaned, nil
	}
	joined := filepath.Join(root, cleaned)
	relToRoot, err := filepath.Rel(root, joined)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return joined, nil
}

// Normalize converts an absolute or working-tree-relative path into the
// canonical root-relative slash form used throughout resolution and patching.
func Normalize(root, path string) (string, error) {
	abs, err := Within(root, path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}
