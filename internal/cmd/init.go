package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/conveyor/internal/config"
	"github.com/harrison/conveyor/internal/filelock"
)

const samplePipeline = `name: build and test

jobs:
  build:
    steps:
      - uses: checkout
      - name: install toolchain
        uses: setup-toolchain
        with:
          channel: stable
      - name: build
        run: cargo build --verbose

  test:
    needs: build
    steps:
      - name: build tests
        run: cargo test --no-run
      - name: run tests
        run: cargo test -- --test-threads=1
`

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a conveyor workspace",
		Long: `Create the .conveyor directory with a default configuration file, and a
sample pipeline.yml if none exists. Existing files are left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initWorkspace(cmd, dir)
		},
	}

	cmd.Flags().Bool("no-sample", false, "Do not write a sample pipeline.yml")
	return cmd
}

func initWorkspace(cmd *cobra.Command, dir string) error {
	conveyorDir := filepath.Join(dir, ".conveyor")
	if err := os.MkdirAll(conveyorDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", conveyorDir, err)
	}

	configPath := filepath.Join(conveyorDir, "config.yaml")
	created, err := config.WriteDefault(configPath)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", configPath)
	}

	noSample, _ := cmd.Flags().GetBool("no-sample")
	if !noSample {
		pipelinePath := filepath.Join(dir, "pipeline.yml")
		if _, err := os.Stat(pipelinePath); os.IsNotExist(err) {
			if err := filelock.AtomicWrite(pipelinePath, []byte(samplePipeline)); err != nil {
				return fmt.Errorf("failed to write sample pipeline: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", pipelinePath)
		}
	}

	return nil
}
