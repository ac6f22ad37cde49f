package cli

import (
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTTY reports whether stdin is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question. Without a terminal it declines, so
// scripted runs must pass --yes explicitly.
func confirm(cmd *cobra.Command, title string) bool {
	if !isTTY() {
		return false
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}
