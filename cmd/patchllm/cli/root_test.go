package cli

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/patchllm/cli/cmd/patchllm/cli/config"
	"github.com/patchllm/cli/cmd/patchllm/cli/session"
	"github.com/patchllm/cli/cmd/patchllm/cli/versioninfo"
)

func TestVersionFlag(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("patchllm --version failed: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, versioninfo.Version) {
		t.Errorf("version output missing version number: %q", output)
	}
	if !strings.Contains(output, runtime.Version()) {
		t.Errorf("version output missing go version: %q", output)
	}
}

func TestSessionApplierCommitsBestEffort(t *testing.T) {
	t.Parallel()

	e := &env{Root: t.TempDir(), Cfg: config.Defaults(), Store: session.NewStore(t.TempDir())}
	c := e.controller(session.NewState())
	if !c.Applier.BestEffort {
		t.Error("session applier must commit best effort")
	}
}

func TestStandaloneApplierDefaultsAllOrNothing(t *testing.T) {
	t.Parallel()

	e := &env{Root: t.TempDir(), Cfg: config.Defaults()}
	if e.applier(-1, 0, false).BestEffort {
		t.Error("standalone applier must default to all-or-nothing")
	}
}

func TestRootHasExpectedCommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	want := []string{"context", "apply", "edit", "session", "scopes", "recipes"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing %q subcommand", name)
		}
	}
}
