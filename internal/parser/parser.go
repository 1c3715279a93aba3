// Package parser loads pipeline definitions from YAML workflow files and
// Markdown runbooks into the models.Pipeline structure.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/conveyor/internal/models"
)

// Format represents the format of a pipeline definition file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatYAML represents a YAML (.yaml, .yml) pipeline file
	FormatYAML
	// FormatMarkdown represents a Markdown (.md, .markdown) runbook file
	FormatMarkdown
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// Parser is the interface that all pipeline parsers implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Pipeline
	Parse(r io.Reader) (*models.Pipeline, error)
}

// DetectFormat detects the pipeline format based on file extension.
// Supported extensions:
//   - .yaml, .yml -> FormatYAML
//   - .md, .markdown -> FormatMarkdown
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatUnknown
	}
}

// NewParser creates a parser instance for the specified format.
// Returns an error if the format is unknown or unsupported.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatYAML:
		return NewYAMLParser(), nil
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile is a convenience function that:
//  1. Detects if the path is a directory (multi-file pipeline) or a file
//  2. For directories, calls ParseDirectory to load pipeline-* files
//  3. For files, auto-detects format, opens it, and parses
//  4. Stores the original file path in pipeline.FilePath
//
// This is the recommended way to load pipeline definitions from disk.
func ParseFile(path string) (*models.Pipeline, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if info.IsDir() {
		return ParseDirectory(path)
	}

	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .yaml, .yml, .md, .markdown)", path)
	}

	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pipeline, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	if absPath, err := filepath.Abs(path); err == nil {
		pipeline.FilePath = absPath
	} else {
		pipeline.FilePath = path
	}

	if pipeline.Name == "" {
		pipeline.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := Validate(pipeline); err != nil {
		return nil, err
	}

	return pipeline, nil
}

// ParseDirectory loads all pipeline-*.{yaml,yml,md,markdown} files from a
// directory, sorted by name, and merges their jobs into a single pipeline.
// Job IDs must be unique across all files.
func ParseDirectory(dir string) (*models.Pipeline, error) {
	files, err := ListPipelineFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no pipeline files found in %s (expected pipeline-*.yaml, pipeline-*.yml, pipeline-*.md)", dir)
	}

	merged := &models.Pipeline{
		Name: filepath.Base(filepath.Clean(dir)),
		Env:  map[string]string{},
	}
	seen := make(map[string]string) // job ID -> file it came from

	for _, f := range files {
		format := DetectFormat(f)
		p, err := NewParser(format)
		if err != nil {
			return nil, err
		}

		file, err := os.Open(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f, err)
		}
		pipeline, err := p.Parse(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}

		if merged.Runner == "" {
			merged.Runner = pipeline.Runner
		}
		for k, v := range pipeline.Env {
			merged.Env[k] = v
		}
		for _, job := range pipeline.Jobs {
			if prev, dup := seen[job.ID]; dup {
				return nil, fmt.Errorf("duplicate job %q: defined in both %s and %s", job.ID, prev, f)
			}
			seen[job.ID] = f
			merged.Jobs = append(merged.Jobs, job)
		}
	}

	if absDir, err := filepath.Abs(dir); err == nil {
		merged.FilePath = absDir
	} else {
		merged.FilePath = dir
	}

	if err := Validate(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// ListPipelineFiles returns all pipeline-* definition files in a directory,
// sorted by file name for deterministic ordering.
func ListPipelineFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "pipeline-") {
			continue
		}
		if DetectFormat(name) == FormatUnknown {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}

	sort.Strings(files)
	return files, nil
}
