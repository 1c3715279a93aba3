package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/conveyor/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// RunRecord is a persisted pipeline run.
type RunRecord struct {
	ID           int64
	RunID        string
	Pipeline     string
	PipelineFile string
	Status       string
	TotalSteps   int
	Completed    int
	Failed       int
	Skipped      int
	Duration     time.Duration
	StartedAt    time.Time
	Steps        []StepRecord
}

// StepRecord is a persisted step outcome within a run.
type StepRecord struct {
	ID           int64
	RunID        string
	JobID        string
	StepName     string
	Status       string
	ExitCode     int
	ErrorMessage string
	Output       string
	Duration     time.Duration
}

// Store manages the SQLite database for run history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a Store and initializes the database, creating the parent
// directory for file-based databases.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set busy_timeout first so subsequent pragmas wait on locks held by
	// concurrent runs against the same database file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on
// lock errors.
func execWithRetry(db *sql.DB, query string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(query)
		if err == nil {
			return nil
		}

		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun persists a run and its step results in a single transaction.
func (s *Store) RecordRun(ctx context.Context, result *models.RunResult, pipelineFile string) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	status := models.StatusSucceeded
	if !result.Succeeded() {
		status = models.StatusFailed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, pipeline, pipeline_file, status, total_steps, completed, failed, skipped, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Pipeline,
		pipelineFile,
		status,
		result.TotalSteps,
		result.Completed,
		result.Failed,
		result.Skipped,
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (run_id, job_id, step_name, status, exit_code, error_message, output, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, jobResult := range result.Jobs {
		for _, stepResult := range jobResult.Steps {
			errorMessage := ""
			if stepResult.Error != nil {
				errorMessage = stepResult.Error.Error()
			}
			_, err = stmt.ExecContext(ctx,
				result.RunID,
				stepResult.JobID,
				stepResult.Step.Name,
				stepResult.Status,
				stepResult.ExitCode,
				errorMessage,
				stepResult.Output,
				stepResult.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert step %s/%s: %w", stepResult.JobID, stepResult.Step.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means no
// limit. Step details are not populated; use GetRun for those.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `SELECT id, run_id, pipeline, pipeline_file, status, total_steps, completed, failed, skipped, duration_ms, started_at
		FROM runs
		ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its steps by run ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, pipeline, pipeline_file, status, total_steps, completed, failed, skipped, duration_ms, started_at
		 FROM runs WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, job_id, step_name, status, exit_code, error_message, output, duration_ms
		 FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step StepRecord
		var errorMessage, output sql.NullString
		var durationMS int64
		if err := rows.Scan(&step.ID, &step.RunID, &step.JobID, &step.StepName,
			&step.Status, &step.ExitCode, &errorMessage, &output, &durationMS); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.ErrorMessage = errorMessage.String
		step.Output = output.String
		step.Duration = time.Duration(durationMS) * time.Millisecond
		run.Steps = append(run.Steps, step)
	}
	return run, rows.Err()
}

// Prune deletes runs older than keepDays and their steps, returning the
// number of runs removed.
func (s *Store) Prune(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays).UTC().Format("2006-01-02 15:04:05")

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM steps WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune steps: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return result.RowsAffected()
}

// scanner covers *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var run RunRecord
	var pipelineFile sql.NullString
	var durationMS int64
	err := row.Scan(&run.ID, &run.RunID, &run.Pipeline, &pipelineFile, &run.Status,
		&run.TotalSteps, &run.Completed, &run.Failed, &run.Skipped, &durationMS, &run.StartedAt)
	if err != nil {
		return nil, err
	}
	run.PipelineFile = pipelineFile.String
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
