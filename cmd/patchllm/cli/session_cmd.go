package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchllm/cli/cmd/patchllm/cli/session"
)

func newSessionCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Plan and execute a multi-step task with review gates",
		Long: "A session records a task, its context, a numbered plan, and the applied\n" +
			"edits. Each step's proposed patch set is reviewed before it touches the\n" +
			"working tree, and the whole session survives process restarts.",
	}
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "session ID (default: most recent)")

	cmd.AddCommand(
		newSessionStartCmd(),
		newSessionContextCmd(&sessionID),
		newSessionPlanCmd(&sessionID),
		newSessionRunCmd(&sessionID),
		newSessionDiffCmd(&sessionID),
		newSessionApproveCmd(&sessionID),
		newSessionRetryCmd(&sessionID),
		newSessionStatusCmd(&sessionID),
		newSessionListCmd(),
		newSessionCancelCmd(&sessionID),
		newSessionDeleteCmd(&sessionID),
	)
	return cmd
}

// withController loads a session and hands its controller to fn, which is
// responsible for all persistence through the controller's commands.
func withController(id string, fn func(*env, *session.Controller) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	state, err := e.loadSession(id)
	if err != nil {
		return err
	}
	return fn(e, e.controller(state))
}

func newSessionStartCmd() *cobra.Command {
	var (
		recipe    string
		directive string
	)
	cmd := &cobra.Command{
		Use:   "start <task>",
		Short: "Create a session and record its task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			var task string
			switch {
			case recipe != "":
				t, ok := e.Cfg.Recipes[recipe]
				if !ok {
					return fmt.Errorf("unknown recipe %q", recipe)
				}
				task = t
			case len(args) == 1:
				task = args[0]
			default:
				return errors.New("a task argument or --recipe is required")
			}

			c := e.controller(session.NewState())
			if err := c.SetTask(task); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s started\n", c.State.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "task: %s\n", task)

			if directive != "" {
				doc, err := c.LoadContext(cmd.Context(), directive, false)
				if err != nil {
					return err
				}
				for _, w := range doc.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "context: %d files, %d bytes\n", len(doc.Files), doc.Size)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recipe, "recipe", "", "use a configured recipe as the task")
	cmd.Flags().StringVarP(&directive, "scope", "s", "", "load context from this scope directive immediately")
	return cmd
}

func newSessionContextCmd(sessionID *string) *cobra.Command {
	var add bool
	cmd := &cobra.Command{
		Use:   "context <directive>",
		Short: "Load or extend the session's context from a scope directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				doc, err := c.LoadContext(cmd.Context(), args[0], add)
				if err != nil {
					return err
				}
				for _, w := range doc.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d bytes\n", len(doc.Files), doc.Size)
				fmt.Fprint(cmd.OutOrStdout(), doc.SourceTree())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&add, "add", false, "merge into the current context instead of replacing it")
	return cmd
}

func newSessionPlanCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Ask the model for a numbered plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				steps, err := c.Plan(cmd.Context())
				if err != nil {
					return err
				}
				for i, s := range steps {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, s.Instruction)
				}
				return nil
			})
		},
	}
}

func newSessionRunCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute the current plan step and stage its edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				step := c.State.CurrentStep()
				if step != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "step %d/%d: %s\n",
						c.State.StepIndex+1, len(c.State.Plan), step.Instruction)
				}
				result, err := c.RunStep(cmd.Context())
				if err != nil {
					return err
				}
				printResult(cmd, result, true)
				fmt.Fprintln(cmd.OutOrStdout(), "review with 'session diff', then 'session approve' or 'session retry'")
				return nil
			})
		},
	}
}

func newSessionDiffCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show the pending patch set's diff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				result := c.State.PendingResult
				if result == nil {
					return errors.New("no pending patch set; run 'session run' first")
				}
				printResult(cmd, result, true)
				return nil
			})
		},
	}
}

func newSessionApproveCmd(sessionID *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Commit the pending patch set and advance the plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				if c.State.PendingSummary != "" {
					fmt.Fprint(cmd.OutOrStdout(), c.State.PendingSummary)
				}
				// The approve command is itself an explicit decision, so
				// only a live terminal gets the extra prompt.
				if !yes && isTTY() && !confirm(cmd, "Commit these edits?") {
					fmt.Fprintln(cmd.OutOrStdout(), "not committed; the patch set stays pending")
					return nil
				}
				result, err := c.Approve(cmd.Context())
				if result != nil {
					printResult(cmd, result, false)
				}
				if err != nil {
					return err
				}
				if c.State.Phase == session.PhaseApplied {
					fmt.Fprintln(cmd.OutOrStdout(), "all steps applied; session complete")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "step committed; %d of %d remaining\n",
						len(c.State.Plan)-c.State.StepIndex, len(c.State.Plan))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "commit without the confirmation prompt")
	return cmd
}

func newSessionRetryCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <feedback>",
		Short: "Reject the pending patch set and re-run the step with feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				result, err := c.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd, result, true)
				return nil
			})
		},
	}
}

func newSessionStatusCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session's phase, plan position, and pending edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			state, err := e.loadSession(*sessionID)
			if err != nil {
				return err
			}
			printSessionStatus(cmd, state)
			return nil
		},
	}
}

func printSessionStatus(cmd *cobra.Command, state *session.State) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s\n", state.ID)
	fmt.Fprintf(out, "phase:   %s\n", state.Phase)
	fmt.Fprintf(out, "task:    %s\n", state.Task)
	if state.ScopeDirective != "" {
		n := 0
		if state.Context != nil {
			n = len(state.Context.Files)
		}
		fmt.Fprintf(out, "context: %s (%d files)\n", state.ScopeDirective, n)
	}
	for i, step := range state.Plan {
		marker := " "
		switch {
		case i < state.StepIndex:
			marker = "✓"
		case i == state.StepIndex && !state.Phase.Terminal():
			marker = "→"
		}
		fmt.Fprintf(out, "  %s %d. %s\n", marker, i+1, step.Instruction)
	}
	if state.PendingSummary != "" {
		fmt.Fprintf(out, "pending:\n%s", state.PendingSummary)
	}
	if state.FailureReason != "" {
		fmt.Fprintf(out, "failure: %s\n", state.FailureReason)
	}
	if state.FailureResult != nil {
		for _, p := range state.FailureResult.Failed() {
			fmt.Fprintf(out, "  ✗ %s: %s\n", p, state.FailureResult.Files[p].Error)
		}
	}
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			states, err := e.Store.List()
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, s := range states {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %s\n",
					s.ID, s.Phase, s.Task)
			}
			return nil
		},
	}
}

func newSessionCancelCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Return a suspended session to its prior stable phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(*sessionID, func(e *env, c *session.Controller) error {
				if err := c.Cancel(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s is now %s\n", c.State.ID, c.State.Phase)
				return nil
			})
		},
	}
}

func newSessionDeleteCmd(sessionID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a session record",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			id := *sessionID
			if id == "" {
				return errors.New("--session is required for delete")
			}
			if err := e.Store.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s deleted\n", id)
			return nil
		},
	}
}
