package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
)

// newEditCmd is the one-shot flow: build context, send one instruction,
// apply the reply. No session record is kept.
func newEditCmd() *cobra.Command {
	var (
		scopes     []string
		dryRun     bool
		bestEffort bool
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "edit <instruction>",
		Short: "Send one instruction with context and apply the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			instruction := args[0]
			if task, ok := e.Cfg.Recipes[instruction]; ok {
				instruction = task
			}

			doc, err := buildDocument(cmd, e, scopes)
			if err != nil {
				return err
			}
			for _, w := range doc.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			reply, err := e.client().Request(cmd.Context(), doc.Render(), instruction)
			if err != nil {
				return err
			}
			parser := &patch.Parser{Root: e.Root}
			set, err := parser.Parse(uuid.NewString(), reply)
			if err != nil {
				return err
			}

			// Always stage first so the operator reviews a diff before
			// anything is written.
			result, err := e.applier(-1, 0, bestEffort).Apply(cmd.Context(), set, apply.DryRun)
			if err != nil {
				return err
			}
			printResult(cmd, result, true)
			if dryRun {
				return nil
			}
			if !result.OK() && !bestEffort {
				return fmt.Errorf("apply failed: %s", result.Summary())
			}
			if !yes && !confirm(cmd, "Apply these edits?") {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return nil
			}

			result, err = e.applier(-1, 0, bestEffort).Apply(cmd.Context(), set, apply.Commit)
			if err != nil {
				return err
			}
			printResult(cmd, result, false)
			if !result.OK() {
				return fmt.Errorf("apply failed: %s", result.Summary())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&scopes, "scope", "s", []string{"@dir:."}, "scope directives to build context from")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "show the diff without applying")
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "commit files that staged cleanly even when others failed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without the confirmation prompt")
	return cmd
}
