package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/conveyor/internal/config"
	"github.com/harrison/conveyor/internal/history"
	"github.com/harrison/conveyor/internal/models"
)

// NewHistoryCommand creates the history command group
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded pipeline runs",
		Long: `Inspect the run history database.

Runs are recorded automatically after each execution unless history is
disabled in the configuration or via --no-history.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openStore resolves the history database path and opens the store.
func openStore(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = resolveDBPath(cfg.History.DBPath)
	}

	return history.NewStore(dbPath)
}

// resolveDBPath anchors the default relative database path at the workspace
// root, so invocations from subdirectories share one history database.
// Explicit absolute or customized paths are used as-is.
func resolveDBPath(cfgPath string) string {
	if filepath.IsAbs(cfgPath) {
		return cfgPath
	}
	if cfgPath == filepath.Join(".conveyor", "history", "runs.db") {
		if path, err := config.GetHistoryDBPath(); err == nil {
			return path
		}
	}
	return cfgPath
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .conveyor/config.yaml)")
	cmd.Flags().String("db", "", "Path to history database (default: from config)")
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			printRunList(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its step results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printRunDetail(cmd.OutOrStdout(), run)
			return nil
		},
	}

	addStoreFlags(cmd)
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			keepDays, _ := cmd.Flags().GetInt("keep-days")
			if !cmd.Flags().Changed("keep-days") {
				keepDays = cfg.History.KeepRunsDays
			}
			if keepDays <= 0 {
				return fmt.Errorf("retention window is unset; pass --keep-days or set history.keep_runs_days")
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), keepDays)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s) older than %d days.\n", removed, keepDays)
			return nil
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int("keep-days", 0, "Delete runs older than this many days (default: from config)")
	return cmd
}

func colorStatus(status string) string {
	switch status {
	case models.StatusSucceeded:
		return color.GreenString(status)
	case models.StatusFailed:
		return color.RedString(status)
	case models.StatusSkipped:
		return color.YellowString(status)
	default:
		return status
	}
}

func printRunList(w io.Writer, runs []*history.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-9s  %-19s  %-8s  %s\n", "RUN ID", "STATUS", "STARTED", "DURATION", "PIPELINE")
	for _, run := range runs {
		fmt.Fprintf(w, "%-36s  %-9s  %-19s  %-8s  %s\n",
			run.RunID,
			colorStatus(run.Status),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Duration.Round(time.Second),
			run.Pipeline,
		)
	}
}

func printRunDetail(w io.Writer, run *history.RunRecord) {
	fmt.Fprintf(w, "Run:      %s\n", run.RunID)
	fmt.Fprintf(w, "Pipeline: %s\n", run.Pipeline)
	if run.PipelineFile != "" {
		fmt.Fprintf(w, "File:     %s\n", run.PipelineFile)
	}
	fmt.Fprintf(w, "Status:   %s\n", colorStatus(run.Status))
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", run.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Steps:    %d total, %d completed, %d failed, %d skipped\n",
		run.TotalSteps, run.Completed, run.Failed, run.Skipped)

	if len(run.Steps) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, step := range run.Steps {
		fmt.Fprintf(w, "  [%s/%s] %s (%s)\n",
			step.JobID, step.StepName, colorStatus(step.Status), step.Duration.Round(time.Millisecond))
		if step.Status == models.StatusFailed && step.ErrorMessage != "" {
			fmt.Fprintf(w, "      %s\n", strings.TrimSpace(step.ErrorMessage))
		}
	}
}
