// Package cli wires the patchllm commands together. Each command handler
// stays thin: it loads configuration, builds the collaborators, and
// delegates to the scope, contextdoc, patch, apply, and session packages.
package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/config"
	"github.com/patchllm/cli/cmd/patchllm/cli/contextdoc"
	"github.com/patchllm/cli/cmd/patchllm/cli/llm"
	"github.com/patchllm/cli/cmd/patchllm/cli/logging"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
	"github.com/patchllm/cli/cmd/patchllm/cli/paths"
	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
	"github.com/patchllm/cli/cmd/patchllm/cli/session"
	"github.com/patchllm/cli/cmd/patchllm/cli/versioninfo"
)

// env is the resolved execution environment shared by command handlers.
type env struct {
	Root  string
	Cfg   config.Config
	Store *session.Store
}

// loadEnv locates the working tree, loads configuration, and initializes
// file logging under the state directory.
func loadEnv() (*env, error) {
	root, err := paths.WorktreeRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.StateDir, ""); err != nil {
		// Logging falls back to stderr; the command still runs.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return &env{Root: root, Cfg: cfg, Store: session.NewStore(cfg.StateDir)}, nil
}

// resolver builds the scope resolver from config-defined scopes.
func (e *env) resolver() *scope.Resolver {
	defs := make(map[string]scope.Definition, len(e.Cfg.Scopes))
	for name, def := range e.Cfg.Scopes {
		defs[name] = scope.Definition{Root: def.Root, Include: def.Include, Exclude: def.Exclude}
	}
	return &scope.Resolver{
		Root:        e.Root,
		Definitions: defs,
		MaxFileSize: e.Cfg.MaxFileSize,
		Git:         &scope.GitLister{Root: e.Root},
		Fetcher:     &scope.HTTPFetcher{},
	}
}

func (e *env) assembler() *contextdoc.Assembler {
	return &contextdoc.Assembler{Budget: e.Cfg.ContextBudget}
}

func (e *env) applier(fuzz, workers int, bestEffort bool) *apply.Applier {
	if fuzz < 0 {
		fuzz = e.Cfg.Fuzz
	}
	if workers <= 0 {
		workers = e.Cfg.Workers
	}
	return &apply.Applier{Root: e.Root, Fuzz: fuzz, Workers: workers, BestEffort: bestEffort}
}

func (e *env) client() *llm.Client {
	return llm.NewClient(e.Cfg.BaseURL, e.Cfg.APIKey, e.Cfg.Model,
		&http.Client{Timeout: e.Cfg.Timeout})
}

// controller assembles a session controller around an existing record.
// Its applier is best effort: a single bad hunk must not discard the rest
// of an approved step, and the retained result map shows what committed.
func (e *env) controller(state *session.State) *session.Controller {
	return &session.Controller{
		State:       state,
		Store:       e.Store,
		Resolver:    e.resolver(),
		Assembler:   e.assembler(),
		Parser:      &patch.Parser{Root: e.Root},
		Applier:     e.applier(-1, 0, true),
		Requester:   e.client(),
		ScanSecrets: e.Cfg.SecretScan,
	}
}

// loadSession loads the given session, or the most recent one when id is empty.
func (e *env) loadSession(id string) (*session.State, error) {
	if id == "" {
		id = e.Store.MostRecent()
		if id == "" {
			return nil, fmt.Errorf("no sessions found; run 'patchllm session start' first")
		}
	}
	return e.Store.Load(id)
}

// NewRootCmd builds the patchllm command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:     "patchllm",
		Short:   "Assemble file context, instruct a model, and apply its edits",
		Version: versioninfo.Short(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetVerbose()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug detail to stderr")
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(
		newContextCmd(),
		newApplyCmd(),
		newEditCmd(),
		newSessionCmd(),
		newScopesCmd(),
		newRecipesCmd(),
	)
	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	defer logging.Close()
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}
