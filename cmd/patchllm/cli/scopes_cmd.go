package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/config"
	"github.com/patchllm/cli/cmd/patchllm/cli/validation"
)

func newScopesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "Inspect and edit the named scopes in patchllm.toml",
	}
	cmd.AddCommand(newScopesListCmd(), newScopesAddCmd(), newScopesRemoveCmd())
	return cmd
}

func newScopesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if len(e.Cfg.Scopes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no scopes configured; add one with 'scopes add'")
				return nil
			}
			names := make([]string, 0, len(e.Cfg.Scopes))
			for name := range e.Cfg.Scopes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				def := e.Cfg.Scopes[name]
				root := def.Root
				if root == "" {
					root = "."
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s root=%s include=%s exclude=%s\n",
					name, root, strings.Join(def.Include, ","), strings.Join(def.Exclude, ","))
			}
			return nil
		},
	}
}

func newScopesAddCmd() *cobra.Command {
	var (
		name    string
		root    string
		include []string
		exclude []string
	)
	cmd := &cobra.Command{
		Use:     "add [name]",
		Aliases: []string{"init"},
		Short:   "Add or replace a named scope",
		Long: "Adds a scope to patchllm.toml. With flags the scope is written directly;\n" +
			"without flags an interactive form collects the fields.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				name = args[0]
			}

			if name == "" || len(include) == 0 {
				if !isTTY() {
					return errors.New("a name and --include are required when not running interactively")
				}
				if err := runScopeForm(&name, &root, &include, &exclude); err != nil {
					return err
				}
			}
			if err := validation.ValidateScopeName(name); err != nil {
				return err
			}

			if e.Cfg.Scopes == nil {
				e.Cfg.Scopes = map[string]config.ScopeDef{}
			}
			e.Cfg.Scopes[name] = config.ScopeDef{Root: root, Include: include, Exclude: exclude}
			if err := config.SaveRepoScopes(e.Root, e.Cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scope %q saved to %s\n", name, config.RepoConfigName)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory the include globs resolve against")
	cmd.Flags().StringSliceVar(&include, "include", nil, "glob patterns to include")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "glob patterns to exclude (exclusion wins)")
	return cmd
}

// runScopeForm collects scope fields interactively.
func runScopeForm(name, root *string, include, exclude *[]string) error {
	var includeRaw, excludeRaw string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Scope name").Value(name).Validate(validation.ValidateScopeName),
		huh.NewInput().Title("Root directory").Description("relative to the working tree; empty means the root").Value(root),
		huh.NewInput().Title("Include globs").Description("comma separated, e.g. src/**/*.go,README.md").Value(&includeRaw),
		huh.NewInput().Title("Exclude globs").Description("comma separated; exclusion wins over inclusion").Value(&excludeRaw),
	))
	if err := form.Run(); err != nil {
		return err
	}
	*include = splitGlobs(includeRaw)
	*exclude = splitGlobs(excludeRaw)
	if len(*include) == 0 {
		return errors.New("at least one include glob is required")
	}
	return nil
}

func splitGlobs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newScopesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a named scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := e.Cfg.Scopes[name]; !ok {
				return fmt.Errorf("unknown scope %q", name)
			}
			delete(e.Cfg.Scopes, name)
			if err := config.SaveRepoScopes(e.Root, e.Cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scope %q removed\n", name)
			return nil
		},
	}
}

func newRecipesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "List configured task recipes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recipes from patchllm.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if len(e.Cfg.Recipes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recipes configured")
				return nil
			}
			names := make([]string, 0, len(e.Cfg.Recipes))
			for name := range e.Cfg.Recipes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", name, e.Cfg.Recipes[name])
			}
			return nil
		},
	})
	return cmd
}
