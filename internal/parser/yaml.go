package parser

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conveyor/internal/models"
)

// YAMLParser parses workflow-style YAML pipeline definitions.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// yamlPipeline is the top-level YAML document structure. Jobs is kept as a
// raw node so that declaration order is preserved; yaml.v3 map decoding
// would lose it.
type yamlPipeline struct {
	Name   string            `yaml:"name"`
	Runner string            `yaml:"runner"`
	Env    map[string]string `yaml:"env"`
	Jobs   yaml.Node         `yaml:"jobs"`
	Steps  []yamlStep        `yaml:"steps"`
}

type yamlJob struct {
	Name            string            `yaml:"name"`
	Needs           needsList         `yaml:"needs"`
	Env             map[string]string `yaml:"env"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	Timeout         string            `yaml:"timeout"`
	Steps           []yamlStep        `yaml:"steps"`
}

type yamlStep struct {
	Name            string            `yaml:"name"`
	Uses            string            `yaml:"uses"`
	Run             string            `yaml:"run"`
	Shell           string            `yaml:"shell"`
	With            map[string]string `yaml:"with"`
	Env             map[string]string `yaml:"env"`
	WorkDir         string            `yaml:"working-directory"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	Timeout         string            `yaml:"timeout"`
}

// needsList accepts both scalar ("needs: build") and sequence
// ("needs: [build, test]") forms.
type needsList []string

func (n *needsList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s != "" {
			*n = []string{s}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*n = items
		return nil
	default:
		return fmt.Errorf("line %d: needs must be a string or a list of strings", node.Line)
	}
}

// Parse reads a YAML pipeline definition. Two layouts are accepted: a
// top-level `jobs` map, or a top-level `steps` list which becomes a single
// implicit job named "default".
func (p *YAMLParser) Parse(r io.Reader) (*models.Pipeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var doc yamlPipeline
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	pipeline := &models.Pipeline{
		Name:   doc.Name,
		Runner: doc.Runner,
		Env:    doc.Env,
	}

	hasJobs := doc.Jobs.Kind != 0
	hasSteps := len(doc.Steps) > 0

	switch {
	case hasJobs && hasSteps:
		return nil, fmt.Errorf("'jobs' and top-level 'steps' are mutually exclusive")
	case hasSteps:
		steps, err := convertSteps(doc.Steps)
		if err != nil {
			return nil, err
		}
		pipeline.Jobs = []models.Job{{ID: "default", Name: "default", Steps: steps}}
	case hasJobs:
		jobs, err := decodeJobs(&doc.Jobs)
		if err != nil {
			return nil, err
		}
		pipeline.Jobs = jobs
	default:
		return nil, fmt.Errorf("pipeline has no jobs or steps")
	}

	return pipeline, nil
}

// decodeJobs walks the raw jobs mapping node pairwise (key node, value node)
// to keep jobs in declaration order.
func decodeJobs(node *yaml.Node) ([]models.Job, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: 'jobs' must be a mapping of job id to job", node.Line)
	}

	var jobs []models.Job
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		var id string
		if err := keyNode.Decode(&id); err != nil {
			return nil, fmt.Errorf("line %d: invalid job id: %w", keyNode.Line, err)
		}

		var yj yamlJob
		if err := valNode.Decode(&yj); err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}

		job, err := convertJob(id, yj)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func convertJob(id string, yj yamlJob) (models.Job, error) {
	name := yj.Name
	if name == "" {
		name = id
	}

	steps, err := convertSteps(yj.Steps)
	if err != nil {
		return models.Job{}, fmt.Errorf("job %q: %w", id, err)
	}

	timeout, err := parseTimeout(yj.Timeout)
	if err != nil {
		return models.Job{}, fmt.Errorf("job %q: %w", id, err)
	}

	return models.Job{
		ID:              id,
		Name:            name,
		Needs:           yj.Needs,
		Steps:           steps,
		Env:             yj.Env,
		ContinueOnError: yj.ContinueOnError,
		Timeout:         timeout,
	}, nil
}

func convertSteps(in []yamlStep) ([]models.Step, error) {
	steps := make([]models.Step, 0, len(in))
	for i, ys := range in {
		timeout, err := parseTimeout(ys.Timeout)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		step := models.Step{
			Name:            ys.Name,
			Uses:            ys.Uses,
			Run:             ys.Run,
			Shell:           ys.Shell,
			With:            ys.With,
			Env:             ys.Env,
			WorkDir:         ys.WorkDir,
			ContinueOnError: ys.ContinueOnError,
			Timeout:         timeout,
		}
		if step.Name == "" {
			step.Name = defaultStepName(step)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// defaultStepName derives a display name for anonymous steps, mirroring how
// hosted CI UIs label them.
func defaultStepName(step models.Step) string {
	if step.Uses != "" {
		return step.Uses
	}
	line := step.Run
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > 60 {
		line = line[:60]
	}
	return line
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}
