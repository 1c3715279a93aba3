package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conveyor/internal/filelock"
)

// HistoryConfig represents run history configuration.
type HistoryConfig struct {
	// Enabled enables run history recording
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepRunsDays is the number of days to keep run history (0 = forever)
	KeepRunsDays int `yaml:"keep_runs_days"`
}

// Config represents conveyor configuration options.
type Config struct {
	// MaxParallel is the maximum number of concurrent jobs per wave (0 = sequential)
	MaxParallel int `yaml:"max_parallel"`

	// Timeout is the maximum execution time for a whole run
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// WorkspaceDir is the directory where checkout steps place sources
	WorkspaceDir string `yaml:"workspace_dir"`

	// Shell is the shell used for run steps (invoked as `<shell> -c <script>`)
	Shell string `yaml:"shell"`

	// DryRun enables validation-only mode without execution
	DryRun bool `yaml:"dry_run"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		MaxParallel:  1, // Sequential: one job at a time
		Timeout:      2 * time.Hour,
		LogLevel:     "info",
		LogDir:       filepath.Join(".conveyor", "logs"),
		WorkspaceDir: filepath.Join(".conveyor", "workspace"),
		Shell:        defaultShell,
		DryRun:       false,
		History: HistoryConfig{
			Enabled:      true,
			DBPath:       filepath.Join(".conveyor", "history", "runs.db"),
			KeepRunsDays: 90,
		},
	}
}

// yamlConfig mirrors Config for parsing, with the timeout as a duration string.
type yamlConfig struct {
	MaxParallel  *int           `yaml:"max_parallel"`
	Timeout      string         `yaml:"timeout"`
	LogLevel     string         `yaml:"log_level"`
	LogDir       string         `yaml:"log_dir"`
	WorkspaceDir string         `yaml:"workspace_dir"`
	Shell        string         `yaml:"shell"`
	DryRun       bool         `yaml:"dry_run"`
	History      *yamlHistory `yaml:"history"`
}

// yamlHistory mirrors HistoryConfig with enabled as a pointer so a partial
// history block does not clobber the default.
type yamlHistory struct {
	Enabled      *bool  `yaml:"enabled"`
	DBPath       string `yaml:"db_path"`
	KeepRunsDays int    `yaml:"keep_runs_days"`
}

// Load loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply values from file over defaults
	if yamlCfg.MaxParallel != nil {
		cfg.MaxParallel = *yamlCfg.MaxParallel
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.WorkspaceDir != "" {
		cfg.WorkspaceDir = yamlCfg.WorkspaceDir
	}
	if yamlCfg.Shell != "" {
		cfg.Shell = yamlCfg.Shell
	}
	if yamlCfg.DryRun {
		cfg.DryRun = yamlCfg.DryRun
	}
	if yamlCfg.History != nil {
		h := yamlCfg.History
		if h.Enabled != nil {
			cfg.History.Enabled = *h.Enabled
		}
		if h.DBPath != "" {
			cfg.History.DBPath = h.DBPath
		}
		if h.KeepRunsDays != 0 {
			cfg.History.KeepRunsDays = h.KeepRunsDays
		}
	}

	return cfg, nil
}

// LoadFromDir loads configuration from .conveyor/config.yaml in the specified
// directory. If the directory or file doesn't exist, returns default
// configuration without error.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, ".conveyor", "config.yaml"))
}

// WriteDefault writes the default configuration to the given path if no file
// exists there yet. Returns true if a new file was created.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	data, err := yaml.Marshal(defaultYAML())
	if err != nil {
		return false, fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := filelock.LockAndWrite(path, data); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// defaultYAML renders the defaults in the file's string-duration form.
func defaultYAML() yamlConfig {
	def := DefaultConfig()
	maxParallel := def.MaxParallel
	historyEnabled := def.History.Enabled
	history := yamlHistory{
		Enabled:      &historyEnabled,
		DBPath:       def.History.DBPath,
		KeepRunsDays: def.History.KeepRunsDays,
	}
	return yamlConfig{
		MaxParallel:  &maxParallel,
		Timeout:      def.Timeout.String(),
		LogLevel:     def.LogLevel,
		LogDir:       def.LogDir,
		WorkspaceDir: def.WorkspaceDir,
		Shell:        def.Shell,
		History:      &history,
	}
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values, so CLI flags take
// precedence over config file settings.
func (c *Config) MergeWithFlags(maxParallel *int, timeout *time.Duration, logDir *string, workspaceDir *string, dryRun *bool) {
	if maxParallel != nil {
		c.MaxParallel = *maxParallel
	}
	if timeout != nil {
		c.Timeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if workspaceDir != nil {
		c.WorkspaceDir = *workspaceDir
	}
	if dryRun != nil {
		c.DryRun = *dryRun
	}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	if c.Shell == "" {
		return fmt.Errorf("shell cannot be empty")
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepRunsDays < 0 {
			return fmt.Errorf("history.keep_runs_days must be >= 0, got %d", c.History.KeepRunsDays)
		}
	}

	return nil
}
