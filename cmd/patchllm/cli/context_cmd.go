package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/clip"
	"github.com/patchllm/cli/cmd/patchllm/cli/contextdoc"
	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Build, export, and import context documents",
	}
	cmd.AddCommand(newContextBuildCmd(), newContextImportCmd())
	return cmd
}

func newContextBuildCmd() *cobra.Command {
	var (
		out  string
		copy bool
	)
	cmd := &cobra.Command{
		Use:   "build <directive>...",
		Short: "Resolve scope directives into a context document",
		Long: "Resolves one or more scope directives (a configured scope name, @dir:PATH,\n" +
			"@git[:SELECTOR], @search:\"QUERY\", @url:ADDRESS, @related:PATH,\n" +
			"@error:\"TRACEBACK\", or @recent) and assembles the files into a single\n" +
			"context document. Multiple directives are merged in order. Git selectors\n" +
			"are staged, unstaged, lastcommit, conflicts, and branch[:BASE].",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			doc, err := buildDocument(cmd, e, args)
			if err != nil {
				return err
			}
			for _, w := range doc.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d files, %d bytes\n", len(doc.Files), doc.Size)

			switch {
			case out != "":
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				if err := doc.Export(f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "context exported to %s\n", out)
			case copy:
				if err := (clip.System{}).Write(doc.Render()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "context copied to clipboard")
			default:
				fmt.Fprint(cmd.OutOrStdout(), doc.Render())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "export the document as JSON to this file")
	cmd.Flags().BoolVar(&copy, "copy", false, "copy the rendered document to the clipboard")
	return cmd
}

// buildDocument resolves each directive and merges the results in order.
func buildDocument(cmd *cobra.Command, e *env, directives []string) (*contextdoc.Document, error) {
	var (
		files    []scope.ResolvedFile
		warnings []string
	)
	for _, directive := range directives {
		spec, err := scope.Parse(directive)
		if err != nil {
			return nil, err
		}
		res, err := e.resolver().Resolve(cmd.Context(), spec)
		if err != nil {
			return nil, err
		}
		files = scope.Union(files, res.Files)
		warnings = append(warnings, res.Warnings...)
	}
	doc := e.assembler().Build(files)
	doc.Warnings = append(warnings, doc.Warnings...)
	if e.Cfg.SecretScan {
		if err := doc.ScanForSecrets(); err != nil {
			return nil, fmt.Errorf("secret scan: %w", err)
		}
	}
	return doc, nil
}

func newContextImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Verify and render a previously exported context document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open export file: %w", err)
			}
			defer f.Close()
			doc, err := contextdoc.Import(f)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), doc.Render())
			return nil
		},
	}
}
