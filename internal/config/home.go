package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetConveyorHome returns the conveyor home directory.
// Priority order:
//  1. CONVEYOR_HOME environment variable (if set)
//  2. Nearest ancestor directory containing a .conveyor directory
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetConveyorHome() (string, error) {
	if home := os.Getenv("CONVEYOR_HOME"); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create conveyor home directory: %w", err)
		}
		return home, nil
	}

	if root, err := findWorkspaceRoot(); err == nil && root != "" {
		return filepath.Join(root, ".conveyor"), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	conveyorHome := filepath.Join(cwd, ".conveyor")
	if err := os.MkdirAll(conveyorHome, 0755); err != nil {
		return "", fmt.Errorf("create conveyor home directory: %w", err)
	}

	return conveyorHome, nil
}

// findWorkspaceRoot walks up from the working directory looking for an
// existing .conveyor directory, so nested invocations share one home.
func findWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		marker := filepath.Join(current, ".conveyor")
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no .conveyor directory found above %s", cwd)
}

// GetHistoryDBPath returns the absolute path to the run history database:
// $CONVEYOR_HOME/history/runs.db
func GetHistoryDBPath() (string, error) {
	home, err := GetConveyorHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history", "runs.db"), nil
}
