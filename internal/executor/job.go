package executor

import (
	"context"
	"time"

	"github.com/harrison/conveyor/internal/logger"
	"github.com/harrison/conveyor/internal/models"
)

// StepExecutor runs a single step. Satisfied by StepRunner.
type StepExecutor interface {
	Execute(ctx context.Context, job models.Job, step models.Step) models.StepResult
}

// JobExecutor runs a job's steps in declaration order with fail-fast
// semantics: when a step fails, the remaining steps are marked skipped
// unless the failed step is continue-on-error.
type JobExecutor struct {
	Steps  StepExecutor
	Logger Logger
}

// NewJobExecutor creates a JobExecutor.
func NewJobExecutor(steps StepExecutor, log Logger) *JobExecutor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &JobExecutor{Steps: steps, Logger: log}
}

// ExecuteJob runs the job and returns its aggregate result. The job status
// is failed when any non-continue-on-error step fails, skipped only when
// the context was already cancelled before the first step.
func (e *JobExecutor) ExecuteJob(ctx context.Context, job models.Job) models.JobResult {
	start := time.Now()

	result := models.JobResult{
		Job:    job,
		Status: models.StatusSucceeded,
		Steps:  make([]models.StepResult, 0, len(job.Steps)),
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	failed := false
	for _, step := range job.Steps {
		if failed || ctx.Err() != nil {
			result.Steps = append(result.Steps, models.StepResult{
				JobID:    job.ID,
				Step:     step,
				Status:   models.StatusSkipped,
				ExitCode: -1,
			})
			continue
		}

		e.Logger.LogStepStart(job.ID, step)
		stepResult := e.Steps.Execute(ctx, job, step)
		_ = e.Logger.LogStepResult(stepResult)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.Status == models.StatusFailed {
			tolerated := step.ContinueOnError || job.ContinueOnError
			if !tolerated {
				failed = true
				result.Status = models.StatusFailed
			}
		}
	}

	if ctx.Err() != nil && !failed && len(job.Steps) > 0 {
		// Cancelled mid-run without a failing step of our own.
		if allSkipped(result.Steps) {
			result.Status = models.StatusSkipped
		} else {
			result.Status = models.StatusFailed
		}
	}

	result.Duration = time.Since(start)
	return result
}

func allSkipped(steps []models.StepResult) bool {
	for _, s := range steps {
		if s.Status != models.StatusSkipped {
			return false
		}
	}
	return len(steps) > 0
}
