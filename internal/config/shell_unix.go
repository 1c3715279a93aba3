//go:build !windows

package config

// defaultShell is the shell used for run steps when none is configured.
const defaultShell = "sh"
