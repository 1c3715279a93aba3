package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/conveyor/internal/models"
)

// FileLogger logs run events to files under the log directory. It creates a
// timestamped per-run log file, per-step output files under steps/, and
// maintains a latest.log symlink pointing to the most recent run. It is
// thread-safe and implements the executor.Logger interface.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	stepsDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing under the given directory with
// the given minimum log level. The directory is created if it doesn't exist,
// a timestamped run log file is opened, and the latest.log symlink is
// created or updated.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	stepsDir := filepath.Join(logDir, "steps")
	if err := os.MkdirAll(stepsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create steps directory: %w", err)
	}

	// Timestamped filename: run-YYYYMMDD-HHMMSS.log
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	if err := linkLatest(logDir, filepath.Base(runFile)); err != nil {
		file.Close()
		return nil, err
	}

	return &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		stepsDir: stepsDir,
		logLevel: normalizeLogLevel(logLevel),
	}, nil
}

// linkLatest points latest.log at the current run file. Windows restricts
// symlink creation to elevated or developer-mode sessions, so on failure it
// falls back to a plain pointer file holding the run file name.
func linkLatest(logDir, runFileName string) error {
	latestPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(latestPath); err == nil {
		if err := os.Remove(latestPath); err != nil {
			return fmt.Errorf("failed to remove old latest.log: %w", err)
		}
	}

	if err := os.Symlink(runFileName, latestPath); err != nil {
		if err := os.WriteFile(latestPath, []byte(runFileName+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to record latest run log: %w", err)
		}
	}
	return nil
}

// Close closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

// RunFile returns the path of the current run log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// write appends a timestamped line to the run log.
func (fl *FileLogger) write(format string, args ...interface{}) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return
	}
	fmt.Fprintf(fl.runLog, "[%s] %s\n", timestamp(), fmt.Sprintf(format, args...))
}

// LogWaveStart logs the start of a wave.
func (fl *FileLogger) LogWaveStart(wave models.Wave) {
	if !fl.shouldLog("info") {
		return
	}
	fl.write("Starting %s: %d jobs", wave.Name, len(wave.JobIDs))
}

// LogWaveComplete logs the completion of a wave.
func (fl *FileLogger) LogWaveComplete(wave models.Wave, duration time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	fl.write("%s complete (%s)", wave.Name, formatDuration(duration))
}

// LogStepStart logs the start of a step.
func (fl *FileLogger) LogStepStart(jobID string, step models.Step) {
	if !fl.shouldLog("info") {
		return
	}
	fl.write("[%s/%s] started", jobID, step.Name)
}

// LogStepResult logs a step result to the run log and writes the step's
// captured output to steps/<job>--<step>.log.
func (fl *FileLogger) LogStepResult(result models.StepResult) error {
	if fl.shouldLog("info") {
		if result.Error != nil {
			fl.write("[%s/%s] %s (exit %d, %s): %v",
				result.JobID, result.Step.Name, result.Status, result.ExitCode,
				formatDuration(result.Duration), result.Error)
		} else {
			fl.write("[%s/%s] %s (exit %d, %s)",
				result.JobID, result.Step.Name, result.Status, result.ExitCode,
				formatDuration(result.Duration))
		}
	}

	if result.Output == "" {
		return nil
	}

	stepFile := filepath.Join(fl.stepsDir, stepFileName(result.JobID, result.Step.Name))
	if err := os.WriteFile(stepFile, []byte(result.Output), 0644); err != nil {
		return fmt.Errorf("failed to write step output: %w", err)
	}
	return nil
}

// LogSummary logs the run summary.
func (fl *FileLogger) LogSummary(result models.RunResult) {
	if !fl.shouldLog("info") {
		return
	}

	fl.write("=== Run Summary ===")
	fl.write("Run: %s", result.RunID)
	fl.write("Total steps: %d", result.TotalSteps)
	fl.write("Completed: %d", result.Completed)
	fl.write("Failed: %d", result.Failed)
	if result.Tolerated > 0 {
		fl.write("Tolerated failures: %d", result.Tolerated)
	}
	if result.Skipped > 0 {
		fl.write("Skipped: %d", result.Skipped)
	}
	fl.write("Duration: %s", formatDuration(result.Duration))

	for _, step := range result.FailedSteps {
		fl.write("Failed: %s/%s (exit %d)", step.JobID, step.Step.Name, step.ExitCode)
	}
}

// stepFileName builds a filesystem-safe file name for a step's output log.
func stepFileName(jobID, stepName string) string {
	sanitize := func(s string) string {
		var sb strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
				sb.WriteRune(r)
			default:
				sb.WriteRune('-')
			}
		}
		return sb.String()
	}
	return fmt.Sprintf("%s--%s.log", sanitize(jobID), sanitize(stepName))
}
