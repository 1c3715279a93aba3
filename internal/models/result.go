package models

import "time"

// Step and job execution status constants
const (
	StatusSucceeded = "succeeded" // Step or job completed with exit code 0
	StatusFailed    = "failed"    // Step or job exited non-zero or errored
	StatusSkipped   = "skipped"   // Step or job was not run due to an earlier failure
)

// StepResult represents the result of executing a single step.
type StepResult struct {
	JobID    string        // Job the step belongs to
	Step     Step          // The step that was executed
	Status   string        // Status: succeeded, failed, skipped
	Output   string        // Captured combined stdout/stderr
	ExitCode int           // Process exit code (0 for succeeded, -1 if not started)
	Error    error         // Error if execution failed before or during start
	Duration time.Duration // Time taken to execute
}

// JobResult represents the aggregate result of executing a job.
type JobResult struct {
	Job      Job           // The job that was executed
	Status   string        // Status: succeeded, failed, skipped
	Steps    []StepResult  // Per-step results in execution order
	Duration time.Duration // Time taken for the whole job
}

// RunResult represents the aggregate result of executing a pipeline.
type RunResult struct {
	RunID       string        // Unique run identifier
	Pipeline    string        // Pipeline name
	TotalSteps  int           // Total number of steps across all jobs
	Completed   int           // Number of steps that succeeded
	Failed      int           // Number of steps that failed and were not tolerated
	Tolerated   int           // Number of failed steps absorbed by continue-on-error
	Skipped     int           // Number of steps skipped after a failure
	Duration    time.Duration // Total execution time
	Jobs        []JobResult   // Per-job results
	FailedSteps []StepResult  // Details of failed steps
}

// Succeeded reports whether the run completed without untolerated failures.
// Failures absorbed by continue-on-error do not fail the run.
func (r *RunResult) Succeeded() bool {
	return r.Failed == 0
}
