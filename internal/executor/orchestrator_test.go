package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/conveyor/internal/models"
)

// scriptedJobs runs jobs through a fake runner, failing those listed in
// failures and recording execution order.
type scriptedJobs struct {
	mu       sync.Mutex
	failures map[string]bool
	executed []string
}

func (s *scriptedJobs) ExecuteJob(ctx context.Context, job models.Job) models.JobResult {
	s.mu.Lock()
	s.executed = append(s.executed, job.ID)
	s.mu.Unlock()

	status := models.StatusSucceeded
	if s.failures[job.ID] {
		status = models.StatusFailed
	}

	steps := make([]models.StepResult, 0, len(job.Steps))
	for _, step := range job.Steps {
		steps = append(steps, models.StepResult{JobID: job.ID, Step: step, Status: status})
	}
	return models.JobResult{Job: job, Status: status, Steps: steps, Duration: time.Millisecond}
}

func chainPipeline() *models.Pipeline {
	jobs := []models.Job{
		makeJob("checkout"),
		makeJob("build", "checkout"),
		makeJob("test", "build"),
	}
	waves, _ := CalculateWaves(jobs)
	return &models.Pipeline{
		Name:  "windows build pipeline",
		Jobs:  jobs,
		Waves: waves,
	}
}

func TestWaveExecutorRunsWavesInOrder(t *testing.T) {
	runner := &scriptedJobs{}
	waves := NewWaveExecutor(runner, nil, 1)

	results, err := waves.ExecutePipeline(context.Background(), chainPipeline())

	require.NoError(t, err)
	assert.Equal(t, []string{"checkout", "build", "test"}, runner.executed)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, models.StatusSucceeded, r.Status)
	}
}

func TestWaveExecutorFailureSkipsLaterWaves(t *testing.T) {
	runner := &scriptedJobs{failures: map[string]bool{"build": true}}
	waves := NewWaveExecutor(runner, nil, 1)

	results, err := waves.ExecutePipeline(context.Background(), chainPipeline())

	require.Error(t, err)
	assert.Equal(t, []string{"checkout", "build"}, runner.executed)

	require.Len(t, results, 3)
	assert.Equal(t, models.StatusSucceeded, results[0].Status)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.Equal(t, models.StatusSkipped, results[2].Status)

	// Skipped jobs still report their steps, all as skipped.
	require.Len(t, results[2].Steps, 1)
	assert.Equal(t, models.StatusSkipped, results[2].Steps[0].Status)
}

func TestWaveExecutorContinueOnErrorJob(t *testing.T) {
	jobs := []models.Job{
		makeJob("lint"),
		makeJob("build", "lint"),
	}
	jobs[0].ContinueOnError = true
	waves, err := CalculateWaves(jobs)
	require.NoError(t, err)

	pipeline := &models.Pipeline{Name: "p", Jobs: jobs, Waves: waves}
	runner := &scriptedJobs{failures: map[string]bool{"lint": true}}
	exec := NewWaveExecutor(runner, nil, 1)

	results, err := exec.ExecutePipeline(context.Background(), pipeline)

	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "build"}, runner.executed)
	assert.Equal(t, models.StatusFailed, results[0].Status)
	assert.Equal(t, models.StatusSucceeded, results[1].Status)
}

func TestWaveExecutorNilPipeline(t *testing.T) {
	waves := NewWaveExecutor(&scriptedJobs{}, nil, 1)
	_, err := waves.ExecutePipeline(context.Background(), nil)
	assert.Error(t, err)
}

func TestOrchestratorRunAggregates(t *testing.T) {
	runner := &scriptedJobs{failures: map[string]bool{"build": true}}
	waves := NewWaveExecutor(runner, nil, 1)
	orch := NewOrchestrator(waves, nil)

	result, err := orch.Run(context.Background(), chainPipeline())

	require.Error(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "windows build pipeline", result.Pipeline)
	assert.Equal(t, 3, result.TotalSteps)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, result.Succeeded())
	require.Len(t, result.FailedSteps, 1)
	assert.Equal(t, "build", result.FailedSteps[0].JobID)
}

func TestAggregateResultsToleratedFailures(t *testing.T) {
	lintStep := models.Step{Name: "lint", Run: "cargo clippy", ContinueOnError: true}
	buildStep := models.Step{Name: "build", Run: "cargo build"}
	auditStep := models.Step{Name: "audit", Run: "cargo audit"}

	check := models.Job{ID: "check", Steps: []models.Step{lintStep, buildStep}}
	audit := models.Job{ID: "audit", ContinueOnError: true, Steps: []models.Step{auditStep}}
	pipeline := &models.Pipeline{Name: "p", Jobs: []models.Job{check, audit}}

	jobResults := []models.JobResult{
		{Job: check, Status: models.StatusSucceeded, Steps: []models.StepResult{
			{JobID: "check", Step: lintStep, Status: models.StatusFailed, ExitCode: 1},
			{JobID: "check", Step: buildStep, Status: models.StatusSucceeded},
		}},
		{Job: audit, Status: models.StatusFailed, Steps: []models.StepResult{
			{JobID: "audit", Step: auditStep, Status: models.StatusFailed, ExitCode: 1},
		}},
	}

	result := aggregateResults(pipeline, jobResults, time.Second)

	// Step-level and job-level continue-on-error both absorb the failure.
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Tolerated)
	assert.Equal(t, 1, result.Completed)
	assert.Empty(t, result.FailedSteps)
	assert.True(t, result.Succeeded())
}

func TestOrchestratorRunSuccess(t *testing.T) {
	runner := &scriptedJobs{}
	waves := NewWaveExecutor(runner, nil, 1)
	orch := NewOrchestrator(waves, nil)

	result, err := orch.Run(context.Background(), chainPipeline())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Completed)
	assert.Zero(t, result.Failed)
	assert.True(t, result.Succeeded())
}

func TestOrchestratorNilPipeline(t *testing.T) {
	orch := NewOrchestrator(NewWaveExecutor(&scriptedJobs{}, nil, 1), nil)
	_, err := orch.Run(context.Background(), nil)
	assert.Error(t, err)
}
