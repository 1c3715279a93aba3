package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunPhase represents the phase of execution where an error occurred.
type RunPhase int

const (
	// PhaseGraph represents errors during job dependency graph calculation.
	PhaseGraph RunPhase = iota
	// PhaseWave represents errors during wave execution.
	PhaseWave
	// PhaseStep represents errors during step execution.
	PhaseStep
	// PhaseAction represents errors during built-in action dispatch.
	PhaseAction
)

// String returns the string representation of RunPhase.
func (p RunPhase) String() string {
	switch p {
	case PhaseGraph:
		return "graph"
	case PhaseWave:
		return "wave"
	case PhaseStep:
		return "step"
	case PhaseAction:
		return "action"
	default:
		return "unknown"
	}
}

// StepError represents an error that occurred during step execution.
// It includes context about which step failed and when.
type StepError struct {
	JobID     string    // Job the step belongs to
	StepName  string    // Name of the step that failed
	Message   string    // Human-readable error message
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the error occurred
}

// NewStepError creates a new StepError with the current timestamp.
func NewStepError(jobID, stepName, msg string, err error) *StepError {
	return &StepError{
		JobID:     jobID,
		StepName:  stepName,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for StepError.
func (e *StepError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("step %s/%s: %s", e.JobID, e.StepName, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *StepError) Unwrap() error {
	return e.Err
}

// PipelineError aggregates step errors that occurred during a run.
// It provides context about which phase failed and how many steps were
// affected.
type PipelineError struct {
	Phase       RunPhase     // Phase where errors occurred
	StepErrors  []*StepError // Individual step errors
	TotalSteps  int          // Total number of steps attempted
	FailedSteps int          // Number of steps that failed
}

// NewPipelineError creates a new PipelineError for the given phase.
func NewPipelineError(phase RunPhase) *PipelineError {
	return &PipelineError{
		Phase:      phase,
		StepErrors: []*StepError{},
	}
}

// AddStep adds a step error and increments the failed step count.
func (e *PipelineError) AddStep(stepErr *StepError) {
	e.StepErrors = append(e.StepErrors, stepErr)
	e.FailedSteps++
}

// Error implements the error interface for PipelineError.
func (e *PipelineError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("run failed in %s phase: %d/%d steps failed",
		e.Phase, e.FailedSteps, e.TotalSteps))

	if len(e.StepErrors) > 0 {
		sb.WriteString(":")
		for _, stepErr := range e.StepErrors {
			sb.WriteString(fmt.Sprintf("\n  - %s", stepErr.Error()))
		}
	}

	return sb.String()
}

// Unwrap returns the step errors for error unwrapping support.
// This allows errors.Is and errors.As to traverse the error chain.
func (e *PipelineError) Unwrap() []error {
	if len(e.StepErrors) == 0 {
		return nil
	}

	errs := make([]error, len(e.StepErrors))
	for i, stepErr := range e.StepErrors {
		errs[i] = stepErr
	}
	return errs
}

// TimeoutError represents a timeout during step execution.
type TimeoutError struct {
	StepName        string        // Name of the step that timed out
	TimeoutDuration time.Duration // Duration after which the timeout occurred
	Timestamp       time.Time     // When the timeout occurred
}

// NewTimeoutError creates a new TimeoutError with the current timestamp.
func NewTimeoutError(stepName string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		StepName:        stepName,
		TimeoutDuration: duration,
		Timestamp:       time.Now(),
	}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s: timeout after %v", e.StepName, e.TimeoutDuration)
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsStepError checks if the error is or wraps a StepError.
func IsStepError(err error) bool {
	if err == nil {
		return false
	}
	var se *StepError
	return errors.As(err, &se)
}

// IsTimeoutError checks if the error is or wraps a TimeoutError or
// context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// IsPipelineError checks if the error is or wraps a PipelineError.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	return errors.As(err, &pe)
}
