package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patchllm/cli/cmd/patchllm/cli/jsonutil"
	"github.com/patchllm/cli/cmd/patchllm/cli/validation"
)

// ErrCorruptState marks an unreadable persisted record. This is fatal for
// the session: it is surfaced immediately and the record is never
// silently reset.
var ErrCorruptState = errors.New("session record corrupt")

// ErrNoSession is returned when no session with the given ID exists.
var ErrNoSession = errors.New("no such session")

// Store persists session records as one JSON file per session ID.
// Writes are atomic (write-temp-then-rename) and last-writer-wins, which
// is acceptable for a single-operator tool.
type Store struct {
	// Dir is the session state directory, e.g. <state-dir>/sessions.
	Dir string
}

// NewStore returns a Store rooted at stateDir/sessions.
func NewStore(stateDir string) *Store {
	return &Store{Dir: filepath.Join(stateDir, "sessions")}
}

func (s *Store) file(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Save writes the record atomically. It must succeed before the next
// command is accepted, so that a restart resumes at the recorded state.
func (s *Store) Save(state *State) error {
	if err := validation.ValidateSessionID(state.ID); err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create session state directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	target := s.file(state.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to rename session state file: %w", err)
	}
	return nil
}

// Load reads a session record. A missing file is ErrNoSession; an
// unparseable one is ErrCorruptState and the session is unusable.
func (s *Store) Load(id string) (*State, error) {
	if err := validation.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("invalid session ID: %w", err)
	}
	data, err := os.ReadFile(s.file(id)) //nolint:gosec // ID validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, id, err)
	}
	if state.ID != id {
		return nil, fmt.Errorf("%w: %s: record ID mismatch", ErrCorruptState, id)
	}
	return &state, nil
}

// List returns all session records, most recently updated first.
// Corrupt records are skipped here; Load reports them individually.
func (s *Store) List() ([]*State, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state directory: %w", err)
	}

	var states []*State
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		state, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].UpdatedAt.After(states[j].UpdatedAt) })
	return states, nil
}

// MostRecent returns the most recently updated session ID, or empty.
func (s *Store) MostRecent() string {
	states, err := s.List()
	if err != nil || len(states) == 0 {
		return ""
	}
	return states[0].ID
}

// Delete removes a session record. Deleting a missing record is not an error.
func (s *Store) Delete(id string) error {
	if err := validation.ValidateSessionID(id); err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	if err := os.Remove(s.file(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session state file: %w", err)
	}
	return nil
}
