package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/conveyor/internal/executor"
	"github.com/harrison/conveyor/internal/parser"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline-file-or-directory>...",
		Short: "Validate one or more pipeline files",
		Long: `Parse and validate pipeline files, checking for:
  - Step validation (exactly one of uses/run, unique names)
  - Unknown job dependencies
  - Circular dependencies
  - Duplicate job IDs

Supports single files, directories (merges pipeline-*.yml files), and
shell globs.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePipelines(args, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

// validatePipelines parses and validates each path, printing a per-file
// verdict. It returns an error when any file is invalid.
func validatePipelines(paths []string, output io.Writer) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failures := 0
	for _, path := range paths {
		pipeline, err := parser.ParseFile(path)
		if err != nil {
			fmt.Fprintf(output, "%s %s: %v\n", red("INVALID"), path, err)
			failures++
			continue
		}

		waves, err := executor.CalculateWaves(pipeline.Jobs)
		if err != nil {
			fmt.Fprintf(output, "%s %s: %v\n", red("INVALID"), path, err)
			failures++
			continue
		}

		fmt.Fprintf(output, "%s %s: %d job(s), %d step(s), %d wave(s)\n",
			green("VALID"), path, len(pipeline.Jobs), pipeline.TotalSteps(), len(waves))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d pipeline file(s) failed validation", failures, len(paths))
	}
	return nil
}
