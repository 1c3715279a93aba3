package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePipelineFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}
	return path
}

const validPipelineYAML = `name: build and test

jobs:
  build:
    steps:
      - name: compile
        run: cargo build --verbose

  test:
    needs: build
    steps:
      - name: run tests
        run: cargo test -- --test-threads=1
`

const cyclicPipelineYAML = `jobs:
  a:
    needs: b
    steps:
      - run: "true"
  b:
    needs: a
    steps:
      - run: "true"
`

func TestValidateCommandValidPipeline(t *testing.T) {
	path := writePipelineFile(t, "pipeline.yml", validPipelineYAML)

	var output bytes.Buffer
	if err := validatePipelines([]string{path}, &output); err != nil {
		t.Fatalf("validatePipelines() returned error for valid pipeline: %v", err)
	}

	got := output.String()
	if !strings.Contains(got, "VALID") {
		t.Errorf("Expected VALID verdict, got: %s", got)
	}
	if !strings.Contains(got, "2 job(s)") {
		t.Errorf("Expected job count, got: %s", got)
	}
	if !strings.Contains(got, "2 wave(s)") {
		t.Errorf("Expected wave count, got: %s", got)
	}
}

func TestValidateCommandCyclicDependencies(t *testing.T) {
	path := writePipelineFile(t, "pipeline.yml", cyclicPipelineYAML)

	var output bytes.Buffer
	err := validatePipelines([]string{path}, &output)
	if err == nil {
		t.Fatal("validatePipelines() should return error for cyclic dependencies")
	}

	if !strings.Contains(output.String(), "INVALID") {
		t.Errorf("Expected INVALID verdict, got: %s", output.String())
	}
}

func TestValidateCommandMissingFile(t *testing.T) {
	var output bytes.Buffer
	err := validatePipelines([]string{"no-such-file.yml"}, &output)
	if err == nil {
		t.Fatal("validatePipelines() should return error for missing file")
	}
}

func TestValidateCommandMixedResults(t *testing.T) {
	valid := writePipelineFile(t, "pipeline.yml", validPipelineYAML)
	invalid := writePipelineFile(t, "pipeline.yml", cyclicPipelineYAML)

	var output bytes.Buffer
	err := validatePipelines([]string{valid, invalid}, &output)
	if err == nil {
		t.Fatal("validatePipelines() should report failure when any file is invalid")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("Expected failure count in error, got: %v", err)
	}

	got := output.String()
	if !strings.Contains(got, "VALID") || !strings.Contains(got, "INVALID") {
		t.Errorf("Expected both verdicts in output, got: %s", got)
	}
}
