package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/conveyor/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRunResult(runID string, failed bool) *models.RunResult {
	buildStatus := models.StatusSucceeded
	if failed {
		buildStatus = models.StatusFailed
	}

	result := &models.RunResult{
		RunID:      runID,
		Pipeline:   "windows build pipeline",
		TotalSteps: 2,
		Duration:   90 * time.Second,
		Jobs: []models.JobResult{
			{
				Job:    models.Job{ID: "build"},
				Status: buildStatus,
				Steps: []models.StepResult{
					{
						JobID:    "build",
						Step:     models.Step{Name: "checkout", Run: "git clone"},
						Status:   models.StatusSucceeded,
						Duration: 10 * time.Second,
					},
					{
						JobID:    "build",
						Step:     models.Step{Name: "cargo build", Run: "cargo build --verbose"},
						Status:   buildStatus,
						ExitCode: 0,
						Duration: 80 * time.Second,
					},
				},
			},
		},
	}

	if failed {
		result.Completed = 1
		result.Failed = 1
		result.Jobs[0].Steps[1].ExitCode = 101
	} else {
		result.Completed = 2
	}
	return result
}

func TestRecordAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-1", false), "pipeline.yml"))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "windows build pipeline", run.Pipeline)
	assert.Equal(t, "pipeline.yml", run.PipelineFile)
	assert.Equal(t, models.StatusSucceeded, run.Status)
	assert.Equal(t, 2, run.TotalSteps)
	assert.Equal(t, 2, run.Completed)
	assert.Equal(t, 90*time.Second, run.Duration)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "checkout", run.Steps[0].StepName)
	assert.Equal(t, "cargo build", run.Steps[1].StepName)
	assert.Equal(t, 80*time.Second, run.Steps[1].Duration)
}

func TestRecordFailedRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-2", true), "pipeline.yml"))

	run, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 101, run.Steps[1].ExitCode)
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-1", false), "a.yml"))
	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-2", true), "b.yml"))
	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-3", false), "c.yml"))

	t.Run("newest first", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-3", runs[0].RunID)
		assert.Equal(t, "run-1", runs[2].RunID)
		// Listing does not load step details.
		assert.Empty(t, runs[0].Steps)
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRecordRunNil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.RecordRun(context.Background(), nil, ""))
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-old", false), "a.yml"))
	require.NoError(t, store.RecordRun(ctx, sampleRunResult("run-new", false), "b.yml"))

	// Backdate one run past the retention window.
	_, err := store.db.ExecContext(ctx,
		`UPDATE runs SET started_at = ? WHERE run_id = ?`,
		time.Now().AddDate(0, 0, -100).UTC().Format("2006-01-02 15:04:05"), "run-old")
	require.NoError(t, err)

	removed, err := store.Prune(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-new", runs[0].RunID)

	_, err = store.GetRun(ctx, "run-old")
	assert.Error(t, err)
}

func TestPruneDisabled(t *testing.T) {
	store := newTestStore(t)
	removed, err := store.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
