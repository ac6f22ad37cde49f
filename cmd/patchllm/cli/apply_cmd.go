package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/apply"
	"github.com/patchllm/cli/cmd/patchllm/cli/clip"
	"github.com/patchllm/cli/cmd/patchllm/cli/patch"
)

func newApplyCmd() *cobra.Command {
	var (
		fromClipboard bool
		fromFile      string
		dryRun        bool
		bestEffort    bool
		fuzz          int
		workers       int
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Parse a model reply and apply its edits to the working tree",
		Long: "Reads a raw model reply from the clipboard or a file, parses the file\n" +
			"blocks into edit operations, and applies them. The default is all-or-nothing:\n" +
			"if any file fails to stage, nothing is written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			switch {
			case fromFile != "":
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("read reply file: %w", err)
				}
				raw = string(data)
			case fromClipboard:
				text, err := (clip.System{}).Read()
				if err != nil {
					return err
				}
				raw = text
			default:
				return fmt.Errorf("one of --from-clipboard or --from-file is required")
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			parser := &patch.Parser{Root: e.Root}
			set, err := parser.Parse(uuid.NewString(), raw)
			if err != nil {
				return err
			}

			mode := apply.Commit
			if dryRun {
				mode = apply.DryRun
			}
			result, err := e.applier(fuzz, workers, bestEffort).Apply(cmd.Context(), set, mode)
			if err != nil {
				return err
			}
			printResult(cmd, result, dryRun)
			if !result.OK() {
				return fmt.Errorf("apply failed: %s", result.Summary())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromClipboard, "from-clipboard", false, "read the model reply from the clipboard")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "read the model reply from this file")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "stage and diff without writing")
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "commit files that staged cleanly even when others failed")
	cmd.Flags().IntVar(&fuzz, "fuzz", -1, "max mismatched context lines per hunk (-1 uses config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "staging pool size (0 uses config)")
	return cmd
}

// printResult writes the per-file outcome table, plus diffs on dry runs.
func printResult(cmd *cobra.Command, result *apply.Result, dryRun bool) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, result.Summary())
	if !dryRun {
		return
	}
	for _, path := range result.Order {
		if fr := result.Files[path]; fr.Diff != "" {
			fmt.Fprintf(out, "\n--- %s ---\n%s", path, fr.Diff)
		}
	}
}
