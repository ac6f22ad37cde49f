package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	state := NewState()
	state.Task = "rename the widget type"
	state.Plan = []PlanStep{
		{Instruction: "rename the type"},
		{Instruction: "fix the callers", Feedback: []string{"missed the tests"}},
	}
	state.StepIndex = 1
	state.Phase = PhasePlanReady

	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(state.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Task != state.Task || loaded.Phase != PhasePlanReady || loaded.StepIndex != 1 {
		t.Errorf("loaded state mismatch: %+v", loaded)
	}
	if len(loaded.Plan) != 2 || loaded.Plan[1].Feedback[0] != "missed the tests" {
		t.Errorf("plan did not round-trip: %+v", loaded.Plan)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Load("0b364d6a-caf0-48f2-b5ed-07653ca43b20"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	state := NewState()
	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	path := filepath.Join(store.Dir, state.ID+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("corrupting record: %v", err)
	}

	if _, err := store.Load(state.ID); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}

func TestStoreRejectsBadID(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Load("../escape"); err == nil {
		t.Fatal("expected error for traversal in session ID")
	}
	if err := store.Delete("../escape"); err == nil {
		t.Fatal("expected error for traversal in session ID")
	}
}

func TestStoreListSkipsCorrupt(t *testing.T) {
	store := NewStore(t.TempDir())

	good := NewState()
	good.Task = "good"
	if err := store.Save(good); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	bad := NewState()
	if err := store.Save(bad); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir, bad.ID+".json"), []byte("junk"), 0o600); err != nil {
		t.Fatalf("corrupting record: %v", err)
	}

	states, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 1 || states[0].ID != good.ID {
		t.Fatalf("List = %d states, want only the readable one", len(states))
	}
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	state := NewState()
	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(state.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(state.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("record still loadable after delete: %v", err)
	}
	if err := store.Delete(state.ID); err != nil {
		t.Fatalf("deleting a missing record should be silent, got %v", err)
	}
}
