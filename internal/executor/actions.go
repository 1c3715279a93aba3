package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Invocation carries the inputs for an action run: the step's with
// parameters, the working directory, the merged environment, and the
// command backend.
type Invocation struct {
	With map[string]string
	Dir  string
	Env  []string
	Exec CommandFunc
}

// Param returns the named with parameter or the fallback when unset.
func (i *Invocation) Param(name, fallback string) string {
	if v, ok := i.With[name]; ok && v != "" {
		return v
	}
	return fallback
}

// Action is a built-in step implementation addressed by a uses reference.
type Action interface {
	// Name is the identifier steps reference in their uses field.
	Name() string
	// Run performs the action and returns combined output and exit code.
	Run(ctx context.Context, inv *Invocation) (string, int, error)
}

// ActionRegistry maps uses references to built-in actions.
type ActionRegistry struct {
	actions map[string]Action
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]Action)}
}

// DefaultActionRegistry creates a registry with the built-in actions
// registered. workDir is the default checkout destination.
func DefaultActionRegistry(workDir string) *ActionRegistry {
	r := NewActionRegistry()
	r.Register(&CheckoutAction{DefaultDir: workDir})
	r.Register(&SetupToolchainAction{})
	return r
}

// Register adds an action, replacing any existing action with the same name.
func (r *ActionRegistry) Register(a Action) {
	r.actions[a.Name()] = a
}

// Get looks up an action by its uses reference. Version suffixes after @
// are accepted and ignored, so "checkout@v1" resolves "checkout".
func (r *ActionRegistry) Get(uses string) (Action, bool) {
	name := uses
	if idx := strings.Index(name, "@"); idx >= 0 {
		name = name[:idx]
	}
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names.
func (r *ActionRegistry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}

// CheckoutAction clones or updates a git repository into the workspace.
//
// Parameters:
//
//	repository  clone URL; when empty the action only verifies an existing
//	            checkout at path
//	ref         branch, tag, or commit to check out (default: repository HEAD)
//	path        destination directory (default: the step working directory)
//	depth       shallow clone depth (default: full history)
type CheckoutAction struct {
	DefaultDir string
}

func (a *CheckoutAction) Name() string { return "checkout" }

func (a *CheckoutAction) Run(ctx context.Context, inv *Invocation) (string, int, error) {
	dest := inv.Param("path", inv.Dir)
	if dest == "" {
		dest = a.DefaultDir
	}
	repo := inv.Param("repository", "")
	ref := inv.Param("ref", "")
	depth := inv.Param("depth", "")

	var combined strings.Builder

	if repo != "" {
		args := []string{"clone"}
		if depth != "" {
			args = append(args, "--depth", depth)
		}
		args = append(args, repo, dest)

		out, code, err := inv.Exec(ctx, "git", args, filepath.Dir(dest), inv.Env)
		combined.WriteString(out)
		if err != nil || code != 0 {
			return combined.String(), code, err
		}
	}

	if ref != "" {
		out, code, err := inv.Exec(ctx, "git", []string{"checkout", ref}, dest, inv.Env)
		combined.WriteString(out)
		if err != nil || code != 0 {
			return combined.String(), code, err
		}
	}

	out, code, err := inv.Exec(ctx, "git", []string{"rev-parse", "HEAD"}, dest, inv.Env)
	combined.WriteString(out)
	return combined.String(), code, err
}

// SetupToolchainAction installs a compiler toolchain through its installer
// command.
//
// Parameters:
//
//	installer  toolchain manager binary (default "rustup")
//	channel    toolchain channel or version, e.g. "stable", "1.75.0"
//	profile    installation profile (default "minimal")
//	override   when "true", set the installed channel as the directory
//	           override after installing
type SetupToolchainAction struct{}

func (a *SetupToolchainAction) Name() string { return "setup-toolchain" }

func (a *SetupToolchainAction) Run(ctx context.Context, inv *Invocation) (string, int, error) {
	installer := inv.Param("installer", "rustup")
	channel := inv.Param("channel", "stable")
	profile := inv.Param("profile", "minimal")

	var combined strings.Builder

	args := []string{"toolchain", "install", channel, "--profile", profile}
	out, code, err := inv.Exec(ctx, installer, args, inv.Dir, inv.Env)
	combined.WriteString(out)
	if err != nil || code != 0 {
		return combined.String(), code, err
	}

	if inv.Param("override", "") == "true" {
		out, code, err = inv.Exec(ctx, installer, []string{"override", "set", channel}, inv.Dir, inv.Env)
		combined.WriteString(out)
		if err != nil || code != 0 {
			return combined.String(), code, err
		}
	}

	out, code, err = inv.Exec(ctx, installer, []string{"show", "active-toolchain"}, inv.Dir, inv.Env)
	combined.WriteString(out)
	if err != nil || code != 0 {
		// Older installers lack the subcommand; the install already succeeded.
		return combined.String(), 0, nil
	}

	if !strings.Contains(out, channel) {
		return combined.String(), 1, fmt.Errorf("active toolchain does not match requested channel %q", channel)
	}
	return combined.String(), 0, nil
}
