// Package logger provides logging implementations for conveyor run progress.
//
// The logger package offers structured logging of execution progress at the
// wave, job, and step levels. Implementations are thread-safe and support
// various output destinations (console, file).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/conveyor/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread
// safety. All output is prefixed with [HH:MM:SS] timestamps. It supports log
// level filtering, and color output is automatically enabled for terminal
// output on os.Stdout/os.Stderr.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded. logLevel
// determines the minimum level for messages to be output; valid levels are
// trace, debug, info, warn, error (case-insensitive), defaulting to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs and color is
// not disabled via NO_COLOR.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) {
		return false
	}
	return isatty.IsTerminal(f.Fd()) && !color.NoColor
}

// normalizeLogLevel converts a log level string to lowercase and validates
// it, returning "info" for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info"
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel logs a message at the specified level if filtering allows it.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorizeLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

func colorizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogWaveStart logs the start of a wave at INFO level.
// Format: "[HH:MM:SS] Starting <name>: <count> jobs"
func (cl *ConsoleLogger) LogWaveStart(wave models.Wave) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	name := wave.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(wave.Name)
	}
	fmt.Fprintf(cl.writer, "[%s] Starting %s: %d jobs\n", ts, name, len(wave.JobIDs))
}

// LogWaveComplete logs the completion of a wave at INFO level.
// Format: "[HH:MM:SS] <name> complete (<duration>)"
func (cl *ConsoleLogger) LogWaveComplete(wave models.Wave, duration time.Duration) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		name := color.New(color.Bold).Sprint(wave.Name)
		complete := color.New(color.FgGreen).Sprint("complete")
		fmt.Fprintf(cl.writer, "[%s] %s %s (%s)\n", ts, name, complete, formatDuration(duration))
	} else {
		fmt.Fprintf(cl.writer, "[%s] %s complete (%s)\n", ts, wave.Name, formatDuration(duration))
	}
}

// LogStepStart logs the start of a step at INFO level.
// Format: "[HH:MM:SS] [job/step] started"
func (cl *ConsoleLogger) LogStepStart(jobID string, step models.Step) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	label := fmt.Sprintf("%s/%s", jobID, step.Name)
	if cl.colorOutput {
		label = color.New(color.FgCyan).Sprint(label)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] started\n", ts, label)
}

// LogStepResult logs the completion of a step at INFO level.
// Format: "[HH:MM:SS] [job/step] <status> (<duration>)"
func (cl *ConsoleLogger) LogStepResult(result models.StepResult) error {
	if cl.writer == nil || !cl.shouldLog("info") {
		return nil
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	label := fmt.Sprintf("%s/%s", result.JobID, result.Step.Name)

	status := result.Status
	if cl.colorOutput {
		label = color.New(color.FgCyan).Sprint(label)
		switch result.Status {
		case models.StatusSucceeded:
			status = color.New(color.FgGreen).Sprint(result.Status)
		case models.StatusFailed:
			status = color.New(color.FgRed).Sprint(result.Status)
		case models.StatusSkipped:
			status = color.New(color.FgYellow).Sprint(result.Status)
		}
	}

	_, err := fmt.Fprintf(cl.writer, "[%s] [%s] %s (%s)\n", ts, label, status, formatDuration(result.Duration))
	return err
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(result models.RunResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()

	header := "=== Run Summary ==="
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
	}

	var output string
	output = fmt.Sprintf("[%s] %s\n", ts, header)
	output += fmt.Sprintf("[%s] Run: %s\n", ts, result.RunID)
	output += fmt.Sprintf("[%s] Total steps: %d\n", ts, result.TotalSteps)

	completed := fmt.Sprintf("Completed: %d", result.Completed)
	failed := fmt.Sprintf("Failed: %d", result.Failed)
	if cl.colorOutput {
		completed = color.New(color.FgGreen).Sprint(completed)
		if result.Failed > 0 {
			failed = color.New(color.FgRed).Sprint(failed)
		}
	}
	output += fmt.Sprintf("[%s] %s\n", ts, completed)
	output += fmt.Sprintf("[%s] %s\n", ts, failed)
	if result.Tolerated > 0 {
		output += fmt.Sprintf("[%s] Tolerated failures: %d\n", ts, result.Tolerated)
	}
	if result.Skipped > 0 {
		output += fmt.Sprintf("[%s] Skipped: %d\n", ts, result.Skipped)
	}
	output += fmt.Sprintf("[%s] Duration: %s\n", ts, formatDuration(result.Duration))

	if len(result.FailedSteps) > 0 {
		failedHeader := "Failed steps:"
		if cl.colorOutput {
			failedHeader = color.New(color.FgRed).Sprint(failedHeader)
		}
		output += fmt.Sprintf("[%s] %s\n", ts, failedHeader)
		for _, step := range result.FailedSteps {
			output += fmt.Sprintf("[%s]   - %s/%s (exit %d)\n", ts, step.JobID, step.Step.Name, step.ExitCode)
		}
	}

	cl.writer.Write([]byte(output))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, remainder/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogWaveStart is a no-op implementation.
func (n *NoOpLogger) LogWaveStart(wave models.Wave) {
}

// LogWaveComplete is a no-op implementation.
func (n *NoOpLogger) LogWaveComplete(wave models.Wave, duration time.Duration) {
}

// LogStepStart is a no-op implementation.
func (n *NoOpLogger) LogStepStart(jobID string, step models.Step) {
}

// LogStepResult is a no-op implementation.
func (n *NoOpLogger) LogStepResult(result models.StepResult) error {
	return nil
}

// LogSummary is a no-op implementation.
func (n *NoOpLogger) LogSummary(result models.RunResult) {
}
