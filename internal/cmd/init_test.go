package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"init"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestInitCommandCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()

	output, err := execInit(t, dir)
	if err != nil {
		t.Fatalf("init should succeed: %v", err)
	}

	configPath := filepath.Join(dir, ".conveyor", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected config file at %s: %v", configPath, err)
	}

	pipelinePath := filepath.Join(dir, "pipeline.yml")
	if _, err := os.Stat(pipelinePath); err != nil {
		t.Errorf("Expected sample pipeline at %s: %v", pipelinePath, err)
	}

	if !strings.Contains(output, "Created") {
		t.Errorf("Expected creation messages, got: %s", output)
	}
}

func TestInitCommandIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	if _, err := execInit(t, dir); err != nil {
		t.Fatalf("first init failed: %v", err)
	}

	configPath := filepath.Join(dir, ".conveyor", "config.yaml")
	before, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}

	output, err := execInit(t, dir)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(output, "already exists") {
		t.Errorf("Expected already-exists notice, got: %s", output)
	}

	after, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("init must not overwrite an existing config")
	}
}

func TestInitCommandNoSample(t *testing.T) {
	dir := t.TempDir()

	if _, err := execInit(t, "--no-sample", dir); err != nil {
		t.Fatalf("init should succeed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pipeline.yml")); !os.IsNotExist(err) {
		t.Error("Expected no sample pipeline with --no-sample")
	}
}

func TestInitSamplePipelineIsValid(t *testing.T) {
	dir := t.TempDir()

	if _, err := execInit(t, dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var output bytes.Buffer
	if err := validatePipelines([]string{filepath.Join(dir, "pipeline.yml")}, &output); err != nil {
		t.Errorf("Sample pipeline should validate: %v\n%s", err, output.String())
	}
}
