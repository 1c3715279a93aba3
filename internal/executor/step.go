package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/harrison/conveyor/internal/models"
)

// CommandFunc executes an external command and returns its combined output
// and exit code. An error is returned only when the command could not be
// started or was interrupted; a non-zero exit is reported via the exit code.
type CommandFunc func(ctx context.Context, name string, args []string, dir string, env []string) (string, int, error)

// commandWaitDelay bounds how long a cancelled command may hold its output
// pipes open (a grandchild inheriting stdout would otherwise block Wait
// until it exits on its own).
const commandWaitDelay = 2 * time.Second

// runCommand is the production CommandFunc backed by os/exec.
func runCommand(ctx context.Context, name string, args []string, dir string, env []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = commandWaitDelay

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			return string(output), exitErr.ExitCode(), nil
		case errors.Is(err, exec.ErrWaitDelay):
			return string(output), cmd.ProcessState.ExitCode(), nil
		}
		return string(output), -1, err
	}

	return string(output), 0, nil
}

// StepRunner executes individual pipeline steps: run steps through a shell,
// uses steps through the built-in action registry.
type StepRunner struct {
	Shell       string            // Default shell for run steps
	WorkDir     string            // Default working directory
	PipelineEnv map[string]string // Pipeline-level environment variables
	Actions     *ActionRegistry   // Built-in actions for uses steps
	Exec        CommandFunc       // Command execution, replaceable in tests
}

// NewStepRunner creates a StepRunner with the production command backend and
// the default action registry.
func NewStepRunner(shell, workDir string, pipelineEnv map[string]string) *StepRunner {
	return &StepRunner{
		Shell:       shell,
		WorkDir:     workDir,
		PipelineEnv: pipelineEnv,
		Actions:     DefaultActionRegistry(workDir),
		Exec:        runCommand,
	}
}

// Execute runs a single step and returns its result. The result status is
// succeeded for exit code 0, failed otherwise. Errors are captured in the
// result rather than returned so that the caller decides fail-fast policy.
func (r *StepRunner) Execute(ctx context.Context, job models.Job, step models.Step) models.StepResult {
	start := time.Now()

	result := models.StepResult{
		JobID:    job.ID,
		Step:     step,
		ExitCode: -1,
	}

	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	env := mergeEnv(os.Environ(), r.PipelineEnv, job.Env, step.Env)
	dir := r.WorkDir
	if step.WorkDir != "" {
		dir = step.WorkDir
	}

	var output string
	var exitCode int
	var err error

	if step.Uses != "" {
		output, exitCode, err = r.runAction(ctx, step, dir, env)
	} else {
		shell := r.Shell
		if step.Shell != "" {
			shell = step.Shell
		}
		output, exitCode, err = r.Exec(ctx, shell, []string{"-c", step.Run}, dir, env)
	}

	result.Output = output
	result.ExitCode = exitCode
	result.Duration = time.Since(start)

	// Wait reports a killed process as an ExitError rather than the context
	// error, so classify timeouts on the context itself.
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && (err != nil || exitCode != 0):
		result.Status = models.StatusFailed
		result.Error = NewTimeoutError(step.Name, step.Timeout)
	case err != nil:
		result.Status = models.StatusFailed
		result.Error = NewStepError(job.ID, step.Name, "execution failed", err)
	case exitCode != 0:
		result.Status = models.StatusFailed
		result.Error = NewStepError(job.ID, step.Name, fmt.Sprintf("exited with code %d", exitCode), nil)
	default:
		result.Status = models.StatusSucceeded
	}

	return result
}

// runAction dispatches a uses step to the action registry.
func (r *StepRunner) runAction(ctx context.Context, step models.Step, dir string, env []string) (string, int, error) {
	if r.Actions == nil {
		return "", -1, fmt.Errorf("no action registry configured")
	}

	action, ok := r.Actions.Get(step.Uses)
	if !ok {
		return "", -1, fmt.Errorf("unknown action %q", step.Uses)
	}

	return action.Run(ctx, &Invocation{
		With: step.With,
		Dir:  dir,
		Env:  env,
		Exec: r.Exec,
	})
}

// mergeEnv layers environment maps over a base environment. Later maps win.
// Keys are emitted in sorted order for deterministic behavior.
func mergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		return base
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(merged))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
