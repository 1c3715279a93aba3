package executor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harrison/conveyor/internal/models"
)

// Logger defines the interface for logging run progress and results.
// Satisfied by logger.ConsoleLogger, logger.FileLogger, and logger.NoOpLogger.
type Logger interface {
	LogWaveStart(wave models.Wave)
	LogWaveComplete(wave models.Wave, duration time.Duration)
	LogStepStart(jobID string, step models.Step)
	LogStepResult(result models.StepResult) error
	LogSummary(result models.RunResult)
}

// JobRunner defines the behavior required to execute a single job.
// Satisfied by JobExecutor.
type JobRunner interface {
	ExecuteJob(ctx context.Context, job models.Job) models.JobResult
}

// WaveExecutor runs a pipeline's waves sequentially, executing the jobs
// within each wave with bounded parallelism. A failed job stops subsequent
// waves; jobs that never ran are reported as skipped.
type WaveExecutor struct {
	jobs        JobRunner
	logger      Logger
	maxParallel int
}

// NewWaveExecutor constructs a WaveExecutor. maxParallel bounds concurrent
// jobs within a wave; values below 1 fall back to DefaultMaxParallel.
func NewWaveExecutor(jobs JobRunner, log Logger, maxParallel int) *WaveExecutor {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallel
	}
	return &WaveExecutor{jobs: jobs, logger: log, maxParallel: maxParallel}
}

// ExecutePipeline runs every wave of the pipeline and returns per-job
// results in wave order. The first failing wave halts execution.
func (w *WaveExecutor) ExecutePipeline(ctx context.Context, pipeline *models.Pipeline) ([]models.JobResult, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if w.jobs == nil {
		return nil, fmt.Errorf("job runner is required")
	}

	jobMap := make(map[string]models.Job, len(pipeline.Jobs))
	for _, job := range pipeline.Jobs {
		jobMap[job.ID] = job
	}

	var allResults []models.JobResult
	var firstErr error

	for i, wave := range pipeline.Waves {
		waveResults, err := w.executeWave(ctx, wave, jobMap)
		allResults = append(allResults, waveResults...)
		if err != nil {
			firstErr = err
			// Jobs in later waves never run; record them as skipped.
			for _, later := range pipeline.Waves[i+1:] {
				for _, jobID := range later.JobIDs {
					allResults = append(allResults, skippedJobResult(jobMap[jobID]))
				}
			}
			break
		}
	}

	return allResults, firstErr
}

func (w *WaveExecutor) executeWave(ctx context.Context, wave models.Wave, jobMap map[string]models.Job) ([]models.JobResult, error) {
	if len(wave.JobIDs) == 0 {
		return nil, nil
	}

	if w.logger != nil {
		w.logger.LogWaveStart(wave)
	}
	start := time.Now()

	limit := w.maxParallel
	if wave.MaxParallel > 0 && wave.MaxParallel < limit {
		limit = wave.MaxParallel
	}

	for _, jobID := range wave.JobIDs {
		if _, ok := jobMap[jobID]; !ok {
			return nil, fmt.Errorf("job %q referenced by %s not found", jobID, wave.Name)
		}
	}

	var mu sync.Mutex
	results := make(map[string]models.JobResult, len(wave.JobIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, jobID := range wave.JobIDs {
		job := jobMap[jobID]
		g.Go(func() error {
			result := w.jobs.ExecuteJob(gctx, job)
			mu.Lock()
			results[job.ID] = result
			mu.Unlock()

			if result.Status == models.StatusFailed && !job.ContinueOnError {
				return NewStepError(job.ID, "", "job failed", nil)
			}
			return nil
		})
	}

	err := g.Wait()

	// Preserve wave declaration order in the returned slice.
	ordered := make([]models.JobResult, 0, len(wave.JobIDs))
	for _, jobID := range wave.JobIDs {
		if result, ok := results[jobID]; ok {
			ordered = append(ordered, result)
		} else {
			ordered = append(ordered, skippedJobResult(jobMap[jobID]))
		}
	}

	if w.logger != nil {
		w.logger.LogWaveComplete(wave, time.Since(start))
	}

	return ordered, err
}

func skippedJobResult(job models.Job) models.JobResult {
	steps := make([]models.StepResult, 0, len(job.Steps))
	for _, step := range job.Steps {
		steps = append(steps, models.StepResult{
			JobID:    job.ID,
			Step:     step,
			Status:   models.StatusSkipped,
			ExitCode: -1,
		})
	}
	return models.JobResult{Job: job, Status: models.StatusSkipped, Steps: steps}
}

// PipelineRunner defines the behavior required to execute a pipeline's waves.
type PipelineRunner interface {
	ExecutePipeline(ctx context.Context, pipeline *models.Pipeline) ([]models.JobResult, error)
}

// Orchestrator coordinates pipeline execution, handles graceful shutdown,
// and aggregates per-job results into a RunResult.
type Orchestrator struct {
	waves  PipelineRunner
	logger Logger
}

// NewOrchestrator creates a new Orchestrator. The logger is optional.
func NewOrchestrator(waves PipelineRunner, log Logger) *Orchestrator {
	if waves == nil {
		panic("pipeline runner cannot be nil")
	}
	return &Orchestrator{waves: waves, logger: log}
}

// Run executes the pipeline with graceful shutdown on SIGINT/SIGTERM and
// returns the aggregated result. A non-nil result is returned even when the
// run failed or was interrupted.
func (o *Orchestrator) Run(ctx context.Context, pipeline *models.Pipeline) (*models.RunResult, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	jobResults, err := o.waves.ExecutePipeline(ctx, pipeline)
	duration := time.Since(start)

	runResult := aggregateResults(pipeline, jobResults, duration)

	if o.logger != nil {
		o.logger.LogSummary(*runResult)
	}

	return runResult, err
}

// aggregateResults folds per-job results into a RunResult summary.
func aggregateResults(pipeline *models.Pipeline, jobResults []models.JobResult, duration time.Duration) *models.RunResult {
	result := &models.RunResult{
		RunID:       uuid.New().String(),
		Pipeline:    pipeline.Name,
		TotalSteps:  pipeline.TotalSteps(),
		Duration:    duration,
		Jobs:        jobResults,
		FailedSteps: []models.StepResult{},
	}

	for _, jobResult := range jobResults {
		for _, stepResult := range jobResult.Steps {
			switch stepResult.Status {
			case models.StatusSucceeded:
				result.Completed++
			case models.StatusFailed:
				if stepResult.Step.ContinueOnError || jobResult.Job.ContinueOnError {
					result.Tolerated++
				} else {
					result.Failed++
					result.FailedSteps = append(result.FailedSteps, stepResult)
				}
			case models.StatusSkipped:
				result.Skipped++
			}
		}
	}

	return result
}
