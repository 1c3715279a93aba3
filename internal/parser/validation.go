package parser

import (
	"fmt"

	"github.com/harrison/conveyor/internal/models"
)

// Validate checks a parsed pipeline for structural problems: missing jobs,
// duplicate job IDs, unknown or cyclic `needs` references, and per-job step
// problems. It is called by ParseFile/ParseDirectory and by the validate
// command.
func Validate(pipeline *models.Pipeline) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if len(pipeline.Jobs) == 0 {
		return fmt.Errorf("pipeline %q has no jobs", pipeline.Name)
	}

	jobIDs := make(map[string]bool, len(pipeline.Jobs))
	for i := range pipeline.Jobs {
		job := &pipeline.Jobs[i]
		if err := job.Validate(); err != nil {
			return err
		}
		if jobIDs[job.ID] {
			return fmt.Errorf("duplicate job id %q", job.ID)
		}
		jobIDs[job.ID] = true
	}

	for i := range pipeline.Jobs {
		job := &pipeline.Jobs[i]
		for _, need := range job.Needs {
			if !jobIDs[need] {
				return fmt.Errorf("job %q: needs unknown job %q", job.ID, need)
			}
		}
	}

	if models.HasCyclicNeeds(pipeline.Jobs) {
		return fmt.Errorf("circular dependency detected in job 'needs' references")
	}

	return nil
}
