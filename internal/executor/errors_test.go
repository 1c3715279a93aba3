package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("command not found")
	err := NewStepError("build", "compile", "execution failed", cause)

	assert.Contains(t, err.Error(), "build")
	assert.Contains(t, err.Error(), "compile")
	assert.Contains(t, err.Error(), "execution failed")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStepError(err))
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("slow step", 30*time.Second)

	assert.Contains(t, err.Error(), "slow step")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTimeoutError(err))
	assert.False(t, IsStepError(err))
}

func TestPipelineErrorAggregation(t *testing.T) {
	pipeErr := NewPipelineError(PhaseStep)
	pipeErr.TotalSteps = 5
	pipeErr.AddStep(NewStepError("build", "compile", "exited with code 1", nil))
	pipeErr.AddStep(NewStepError("test", "run tests", "exited with code 101", nil))

	require.Len(t, pipeErr.StepErrors, 2)
	assert.Contains(t, pipeErr.Error(), "2")
	assert.True(t, IsPipelineError(pipeErr))

	var stepErr *StepError
	assert.True(t, errors.As(pipeErr, &stepErr))
}

func TestRunPhaseString(t *testing.T) {
	assert.Equal(t, "graph", PhaseGraph.String())
	assert.Equal(t, "wave", PhaseWave.String())
	assert.Equal(t, "step", PhaseStep.String())
	assert.Equal(t, "action", PhaseAction.String())
}
