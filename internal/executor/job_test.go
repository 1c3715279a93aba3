package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/conveyor/internal/models"
)

// scriptedSteps fails the steps whose names appear in failures and succeeds
// the rest.
type scriptedSteps struct {
	failures map[string]bool
	executed []string
}

func (s *scriptedSteps) Execute(ctx context.Context, job models.Job, step models.Step) models.StepResult {
	s.executed = append(s.executed, step.Name)
	result := models.StepResult{
		JobID:    job.ID,
		Step:     step,
		Status:   models.StatusSucceeded,
		Duration: time.Millisecond,
	}
	if s.failures[step.Name] {
		result.Status = models.StatusFailed
		result.ExitCode = 1
		result.Error = NewStepError(job.ID, step.Name, "exited with code 1", nil)
	}
	return result
}

func jobWithSteps(names ...string) models.Job {
	job := models.Job{ID: "build", Name: "build"}
	for _, name := range names {
		job.Steps = append(job.Steps, models.Step{Name: name, Run: "true"})
	}
	return job
}

func TestJobExecutorAllStepsSucceed(t *testing.T) {
	steps := &scriptedSteps{}
	exec := NewJobExecutor(steps, nil)

	result := exec.ExecuteJob(context.Background(), jobWithSteps("checkout", "build", "test"))

	assert.Equal(t, models.StatusSucceeded, result.Status)
	assert.Equal(t, []string{"checkout", "build", "test"}, steps.executed)
	require.Len(t, result.Steps, 3)
	for _, sr := range result.Steps {
		assert.Equal(t, models.StatusSucceeded, sr.Status)
	}
}

func TestJobExecutorFailFast(t *testing.T) {
	steps := &scriptedSteps{failures: map[string]bool{"build": true}}
	exec := NewJobExecutor(steps, nil)

	result := exec.ExecuteJob(context.Background(), jobWithSteps("checkout", "build", "test", "package"))

	assert.Equal(t, models.StatusFailed, result.Status)
	// The failing step runs, everything after it is skipped without running.
	assert.Equal(t, []string{"checkout", "build"}, steps.executed)

	require.Len(t, result.Steps, 4)
	assert.Equal(t, models.StatusSucceeded, result.Steps[0].Status)
	assert.Equal(t, models.StatusFailed, result.Steps[1].Status)
	assert.Equal(t, models.StatusSkipped, result.Steps[2].Status)
	assert.Equal(t, models.StatusSkipped, result.Steps[3].Status)
}

func TestJobExecutorContinueOnErrorStep(t *testing.T) {
	steps := &scriptedSteps{failures: map[string]bool{"lint": true}}
	exec := NewJobExecutor(steps, nil)

	job := jobWithSteps("lint", "build")
	job.Steps[0].ContinueOnError = true

	result := exec.ExecuteJob(context.Background(), job)

	assert.Equal(t, models.StatusSucceeded, result.Status)
	assert.Equal(t, []string{"lint", "build"}, steps.executed)
	assert.Equal(t, models.StatusFailed, result.Steps[0].Status)
	assert.Equal(t, models.StatusSucceeded, result.Steps[1].Status)
}

func TestJobExecutorContinueOnErrorJob(t *testing.T) {
	steps := &scriptedSteps{failures: map[string]bool{"build": true}}
	exec := NewJobExecutor(steps, nil)

	job := jobWithSteps("build", "test")
	job.ContinueOnError = true

	result := exec.ExecuteJob(context.Background(), job)

	assert.Equal(t, models.StatusSucceeded, result.Status)
	assert.Equal(t, []string{"build", "test"}, steps.executed)
}

func TestJobExecutorCancelledContext(t *testing.T) {
	steps := &scriptedSteps{}
	exec := NewJobExecutor(steps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.ExecuteJob(ctx, jobWithSteps("checkout", "build"))

	assert.Equal(t, models.StatusSkipped, result.Status)
	assert.Empty(t, steps.executed)
	for _, sr := range result.Steps {
		assert.Equal(t, models.StatusSkipped, sr.Status)
	}
}
