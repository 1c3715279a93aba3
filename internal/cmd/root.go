package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for conveyor
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conveyor",
		Short: "Sequential CI pipeline runner",
		Long: `Conveyor executes CI pipeline definitions on the local machine.

It parses pipeline files (YAML or Markdown runbooks), resolves job
dependencies into execution waves, and runs each job's steps in order
with fail-fast semantics. Run results are recorded in a local history
database.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewInitCommand())

	return cmd
}
