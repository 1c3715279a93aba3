package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/conveyor/internal/config"
	"github.com/harrison/conveyor/internal/executor"
	"github.com/harrison/conveyor/internal/filelock"
	"github.com/harrison/conveyor/internal/history"
	"github.com/harrison/conveyor/internal/logger"
	"github.com/harrison/conveyor/internal/models"
	"github.com/harrison/conveyor/internal/parser"
)

// multiLogger fans log events out to several loggers. Used to log to the
// console and the run log file at the same time.
type multiLogger struct {
	loggers []executor.Logger
}

func (m *multiLogger) LogWaveStart(wave models.Wave) {
	for _, l := range m.loggers {
		l.LogWaveStart(wave)
	}
}

func (m *multiLogger) LogWaveComplete(wave models.Wave, duration time.Duration) {
	for _, l := range m.loggers {
		l.LogWaveComplete(wave, duration)
	}
}

func (m *multiLogger) LogStepStart(jobID string, step models.Step) {
	for _, l := range m.loggers {
		l.LogStepStart(jobID, step)
	}
}

func (m *multiLogger) LogStepResult(result models.StepResult) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.LogStepResult(result); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiLogger) LogSummary(result models.RunResult) {
	for _, l := range m.loggers {
		l.LogSummary(result)
	}
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline-file-or-directory>",
		Short: "Execute a pipeline",
		Long: `Execute a pipeline definition by running its jobs in dependency order.

The run command parses the specified pipeline file or directory (YAML or
Markdown format), resolves job dependencies into execution waves, and runs
each job's steps sequentially. A failed step skips the remaining steps of
its job and any dependent jobs.

Configuration is loaded from .conveyor/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  # Single file execution
  conveyor run pipeline.yml

  # Directory execution (merges pipeline-*.yml files)
  conveyor run ci/

  # Other options
  conveyor run --dry-run pipeline.yml      # Validate without executing
  conveyor run --timeout 2h pipeline.yml   # Set 2 hour timeout
  conveyor run --max-parallel 4 ci/        # Allow 4 concurrent jobs per wave
  conveyor run --log-dir ./logs pipeline.yml
  conveyor run --no-history pipeline.yml   # Skip history recording`,
		Args: cobra.ExactArgs(1),
		RunE: runPipeline,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .conveyor/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "Validate the pipeline without executing steps")
	cmd.Flags().Int("max-parallel", -1, "Maximum number of concurrent jobs per wave (-1 = use config)")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30m, 2h, 1h30m)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("workspace-dir", "", "Working directory for steps")
	cmd.Flags().Bool("no-history", false, "Do not record this run in the history database")

	return cmd
}

// runPipeline implements the run command logic
func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := mergeRunFlags(cmd, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pipelineFile := args[0]
	fmt.Fprintf(cmd.OutOrStdout(), "Loading pipeline from %s...\n", pipelineFile)
	pipeline, err := parser.ParseFile(pipelineFile)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	waves, err := executor.CalculateWaves(pipeline.Jobs)
	if err != nil {
		return fmt.Errorf("failed to calculate execution waves: %w", err)
	}
	if cfg.MaxParallel > 0 {
		for i := range waves {
			waves[i].MaxParallel = cfg.MaxParallel
		}
	}
	pipeline.Waves = waves

	fmt.Fprintf(cmd.OutOrStdout(), "\nPipeline: %s\n", pipeline.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  Jobs: %d\n", len(pipeline.Jobs))
	fmt.Fprintf(cmd.OutOrStdout(), "  Steps: %d\n", pipeline.TotalSteps())
	fmt.Fprintf(cmd.OutOrStdout(), "  Execution waves: %d\n", len(waves))
	fmt.Fprintf(cmd.OutOrStdout(), "  Timeout: %s\n", cfg.Timeout)

	if cfg.DryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "\nDry-run mode: pipeline is valid and ready for execution.\n")
		printWaves(cmd, pipeline)
		return nil
	}

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	defer fileLog.Close()
	log := &multiLogger{loggers: []executor.Logger{consoleLog, fileLog}}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	steps := executor.NewStepRunner(cfg.Shell, cfg.WorkspaceDir, pipeline.Env)
	jobs := executor.NewJobExecutor(steps, log)
	wavesExec := executor.NewWaveExecutor(jobs, log, cfg.MaxParallel)
	orch := executor.NewOrchestrator(wavesExec, log)

	ctx := cmd.Context()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result, runErr := orch.Run(ctx, pipeline)

	if result != nil {
		noHistory, _ := cmd.Flags().GetBool("no-history")
		if cfg.History.Enabled && !noHistory {
			if err := recordHistory(cfg, result, pipeline.FilePath); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to record run history: %v\n", err)
			}
		}

		if err := writeRunSummary(cfg.LogDir, result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to write run summary: %v\n", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nRun log: %s\n", fileLog.RunFile())
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if result != nil && !result.Succeeded() {
		return fmt.Errorf("run failed: %d step(s) failed", result.Failed)
	}
	return nil
}

// loadConfig loads configuration from the --config flag path or the default
// .conveyor/config.yaml location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// mergeRunFlags merges changed CLI flags into the configuration, giving
// flags precedence over file values.
func mergeRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	var maxParallelPtr *int
	if cmd.Flags().Changed("max-parallel") {
		maxParallel, _ := cmd.Flags().GetInt("max-parallel")
		maxParallelPtr = &maxParallel
	}

	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &logDir
	}

	var workspaceDirPtr *string
	if cmd.Flags().Changed("workspace-dir") {
		workspaceDir, _ := cmd.Flags().GetString("workspace-dir")
		workspaceDirPtr = &workspaceDir
	}

	var dryRunPtr *bool
	if cmd.Flags().Changed("dry-run") {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		dryRunPtr = &dryRun
	}

	cfg.MergeWithFlags(maxParallelPtr, timeoutPtr, logDirPtr, workspaceDirPtr, dryRunPtr)
	return nil
}

// printWaves prints the wave layout for dry-run and validate output.
func printWaves(cmd *cobra.Command, pipeline *models.Pipeline) {
	fmt.Fprintf(cmd.OutOrStdout(), "\nExecution waves:\n")
	for i, wave := range pipeline.Waves {
		fmt.Fprintf(cmd.OutOrStdout(), "  Wave %d: %d job(s)\n", i+1, len(wave.JobIDs))
		for _, jobID := range wave.JobIDs {
			if job, ok := pipeline.JobByID(jobID); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "    - %s (%d steps)\n", job.ID, len(job.Steps))
			}
		}
	}
}

// recordHistory persists the run result to the history database.
func recordHistory(cfg *config.Config, result *models.RunResult, pipelineFile string) error {
	store, err := history.NewStore(resolveDBPath(cfg.History.DBPath))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordRun(ctx, result, pipelineFile); err != nil {
		return err
	}

	if cfg.History.KeepRunsDays > 0 {
		if _, err := store.Prune(ctx, cfg.History.KeepRunsDays); err != nil {
			return err
		}
	}
	return nil
}

// runSummary is the JSON shape of the summary file written next to the logs.
type runSummary struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Status     string    `json:"status"`
	TotalSteps int       `json:"total_steps"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Tolerated  int       `json:"tolerated,omitempty"`
	Skipped    int       `json:"skipped"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// writeRunSummary writes a machine-readable summary of the run into the log
// directory. The write is atomic and lock-guarded so concurrent runs sharing
// a log directory do not interleave.
func writeRunSummary(logDir string, result *models.RunResult) error {
	status := models.StatusSucceeded
	if !result.Succeeded() {
		status = models.StatusFailed
	}

	summary := runSummary{
		RunID:      result.RunID,
		Pipeline:   result.Pipeline,
		Status:     status,
		TotalSteps: result.TotalSteps,
		Completed:  result.Completed,
		Failed:     result.Failed,
		Tolerated:  result.Tolerated,
		Skipped:    result.Skipped,
		DurationMS: result.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}

	return filelock.LockAndWrite(filepath.Join(logDir, "last-run.json"), data)
}
