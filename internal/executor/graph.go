package executor

import (
	"fmt"
	"sort"

	"github.com/harrison/conveyor/internal/models"
)

const (
	// DefaultMaxParallel is the default maximum number of concurrent jobs
	// per wave. Sequential execution matches a single hosted runner.
	DefaultMaxParallel = 1
)

// JobGraph represents a directed graph of job dependencies.
type JobGraph struct {
	Jobs     map[string]*models.Job
	Edges    map[string][]string // prerequisite -> dependents
	InDegree map[string]int      // job -> number of unmet dependencies
}

// ValidateJobs checks that all job IDs are unique and all needs references
// resolve to existing jobs.
func ValidateJobs(jobs []models.Job) error {
	if len(jobs) == 0 {
		return fmt.Errorf("pipeline must contain at least one job")
	}

	jobMap := make(map[string]bool)
	for _, job := range jobs {
		if job.ID == "" {
			return fmt.Errorf("job has empty id")
		}
		if jobMap[job.ID] {
			return fmt.Errorf("job %s: duplicate job id", job.ID)
		}
		jobMap[job.ID] = true
	}

	for _, job := range jobs {
		for _, need := range job.Needs {
			if !jobMap[need] {
				return fmt.Errorf("job %s: needs non-existent job %s", job.ID, need)
			}
		}
	}

	return nil
}

// BuildJobGraph constructs a dependency graph from a list of jobs.
func BuildJobGraph(jobs []models.Job) *JobGraph {
	g := &JobGraph{
		Jobs:     make(map[string]*models.Job),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
	}

	for i := range jobs {
		g.Jobs[jobs[i].ID] = &jobs[i]
		g.InDegree[jobs[i].ID] = 0
	}

	// Only add edges for valid dependencies; invalid ones are caught by
	// ValidateJobs.
	for _, job := range jobs {
		for _, need := range job.Needs {
			if _, exists := g.Jobs[need]; !exists {
				continue
			}
			// need -> job (need must complete before job)
			g.Edges[need] = append(g.Edges[need], job.ID)
			g.InDegree[job.ID]++
		}
	}

	return g
}

// HasCycle detects if the graph contains a cycle using DFS with color marking.
func (g *JobGraph) HasCycle() bool {
	const (
		white = 0 // not visited
		gray  = 1 // visiting
		black = 2 // visited
	)

	colors := make(map[string]int)
	for id := range g.Jobs {
		colors[id] = white
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray

		for _, neighbor := range g.Edges[node] {
			if colors[neighbor] == gray {
				return true // back edge = cycle
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	// Check for self-referencing first
	for id, job := range g.Jobs {
		for _, need := range job.Needs {
			if need == id {
				return true
			}
		}
	}

	for id := range g.Jobs {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}

// CalculateWaves computes execution waves using Kahn's algorithm
// (topological sort). Jobs with no dependencies go in Wave 1, jobs depending
// only on Wave 1 go in Wave 2, and so on.
func CalculateWaves(jobs []models.Job) ([]models.Wave, error) {
	if err := ValidateJobs(jobs); err != nil {
		return nil, err
	}

	graph := BuildJobGraph(jobs)

	if graph.HasCycle() {
		return nil, fmt.Errorf("circular dependency detected")
	}

	var waves []models.Wave
	inDegree := make(map[string]int)
	for k, v := range graph.InDegree {
		inDegree[k] = v
	}

	for len(inDegree) > 0 {
		// All jobs with in-degree 0 form the current wave
		var currentWave []string
		for id, degree := range inDegree {
			if degree == 0 {
				currentWave = append(currentWave, id)
			}
		}

		if len(currentWave) == 0 {
			return nil, fmt.Errorf("graph error: no jobs with zero in-degree")
		}

		// Sort for deterministic ordering within the wave
		sort.Strings(currentWave)

		waves = append(waves, models.Wave{
			Name:        fmt.Sprintf("Wave %d", len(waves)+1),
			JobIDs:      currentWave,
			MaxParallel: DefaultMaxParallel,
		})

		for _, id := range currentWave {
			delete(inDegree, id)

			for _, dependent := range graph.Edges[id] {
				if _, exists := inDegree[dependent]; exists {
					inDegree[dependent]--
				}
			}
		}
	}

	return waves, nil
}
