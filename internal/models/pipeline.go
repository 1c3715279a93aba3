package models

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline represents a parsed pipeline definition with its jobs and
// pipeline-level configuration.
type Pipeline struct {
	Name     string            // Pipeline name
	Runner   string            // Runner image identifier (informational label)
	Env      map[string]string // Pipeline-level environment variables
	Jobs     []Job             // Jobs in declaration order
	Waves    []Wave            // Execution waves (grouped jobs)
	FilePath string            // Original file path (for display and history)
}

// Job is a named group of steps executed sequentially on one runner.
// Jobs may depend on other jobs via Needs.
type Job struct {
	ID              string            // Unique job identifier
	Name            string            // Human-readable job name (defaults to ID)
	Needs           []string          // Job IDs this job depends on
	Steps           []Step            // Steps in declaration order
	Env             map[string]string // Job-level environment variables
	ContinueOnError bool              // Whether a failed job should not fail the run
	Timeout         time.Duration     // Per-job timeout (0 = inherit run timeout)
}

// Step is a single unit of work within a job: either a shell command (Run)
// or a built-in action invocation (Uses). Exactly one of the two is set.
type Step struct {
	Name            string            // Step name, unique within its job
	Uses            string            // Built-in action identifier (e.g. "checkout")
	Run             string            // Shell command or script
	Shell           string            // Shell override for Run steps
	With            map[string]string // Parameters for Uses steps
	Env             map[string]string // Step-level environment variables
	WorkDir         string            // Working directory override
	ContinueOnError bool              // Whether a failure halts the remaining steps
	Timeout         time.Duration     // Per-step timeout (0 = inherit)
}

// Wave represents a group of jobs whose dependencies are all satisfied and
// which may therefore execute within the same scheduling round.
type Wave struct {
	Name        string   // Wave name (e.g., "Wave 1")
	JobIDs      []string // Job IDs in this wave
	MaxParallel int      // Maximum concurrent jobs in this wave
}

// Validate checks that the step is structurally sound.
func (s *Step) Validate() error {
	if s.Name == "" {
		return errors.New("step name is required")
	}
	if s.Uses == "" && s.Run == "" {
		return fmt.Errorf("step %q: one of 'uses' or 'run' is required", s.Name)
	}
	if s.Uses != "" && s.Run != "" {
		return fmt.Errorf("step %q: 'uses' and 'run' are mutually exclusive", s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("step %q: timeout must be >= 0", s.Name)
	}
	return nil
}

// Validate checks that the job and all of its steps are structurally sound.
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("job %q: at least one step is required", j.ID)
	}
	seen := make(map[string]bool, len(j.Steps))
	for i := range j.Steps {
		if err := j.Steps[i].Validate(); err != nil {
			return fmt.Errorf("job %q: %w", j.ID, err)
		}
		if seen[j.Steps[i].Name] {
			return fmt.Errorf("job %q: duplicate step name %q", j.ID, j.Steps[i].Name)
		}
		seen[j.Steps[i].Name] = true
	}
	for _, need := range j.Needs {
		if need == j.ID {
			return fmt.Errorf("job %q: depends on itself", j.ID)
		}
	}
	return nil
}

// JobByID returns the job with the given ID, or false if not present.
func (p *Pipeline) JobByID(id string) (*Job, bool) {
	for i := range p.Jobs {
		if p.Jobs[i].ID == id {
			return &p.Jobs[i], true
		}
	}
	return nil, false
}

// TotalSteps returns the number of steps across all jobs.
func (p *Pipeline) TotalSteps() int {
	n := 0
	for i := range p.Jobs {
		n += len(p.Jobs[i].Steps)
	}
	return n
}

// HasCyclicNeeds detects circular dependencies in a list of jobs using DFS
// with color marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicNeeds(jobs []Job) bool {
	graph := make(map[string][]string)
	jobMap := make(map[string]bool)

	for _, job := range jobs {
		jobMap[job.ID] = true
		graph[job.ID] = []string{}
	}

	// Build edges: if job A needs B, then B -> A
	for _, job := range jobs {
		for _, need := range job.Needs {
			if need == job.ID {
				return true
			}
			if jobMap[need] {
				graph[need] = append(graph[need], job.ID)
			}
		}
	}

	const (
		white = 0 // not visited
		gray  = 1 // currently visiting
		black = 2 // visited
	)

	colors := make(map[string]int)
	for id := range jobMap {
		colors[id] = white
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray

		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				// Back edge found - cycle detected
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	for id := range jobMap {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}
