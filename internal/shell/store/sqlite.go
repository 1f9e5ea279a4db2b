package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and runs migrations.
// The parent directory of a file DSN is created if missing.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, NewStoreError("NewSQLiteStore", "", "failed to create database directory", ErrConnectionFailed)
		}
	}

	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}
	// A second connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID                string  `db:"id"`
	DeploymentID      string  `db:"deployment_id"`
	Service           string  `db:"service"`
	Stage             string  `db:"stage"`
	Region            string  `db:"region"`
	StackName         string  `db:"stack_name"`
	Bucket            string  `db:"bucket"`
	ArtifactDirectory string  `db:"artifact_directory"`
	OperationToken    string  `db:"operation_token"`
	Outcome           string  `db:"outcome"`
	FailedStep        string  `db:"failed_step"`
	ErrorMessage      string  `db:"error_message"`
	StartedAt         string  `db:"started_at"`
	FinishedAt        *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO runs (
			id, deployment_id, service, stage, region, stack_name,
			bucket, artifact_directory, operation_token,
			outcome, failed_step, error_message, started_at, finished_at
		) VALUES (
			:id, :deployment_id, :service, :stage, :region, :stack_name,
			:bucket, :artifact_directory, :operation_token,
			:outcome, :failed_step, :error_message, :started_at, :finished_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, runToRow(run))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", run.ID, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *RunRecord) error {
	query := `
		UPDATE runs SET
			bucket = :bucket,
			artifact_directory = :artifact_directory,
			operation_token = :operation_token,
			outcome = :outcome,
			failed_step = :failed_step,
			error_message = :error_message,
			finished_at = :finished_at
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, runToRow(run))
	if err != nil {
		return NewStoreError("UpdateRun", run.ID, err.Error(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewStoreError("UpdateRun", run.ID, "run not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	return getRun(ctx, s.db, `SELECT * FROM runs WHERE id = ?`, "GetRun", id)
}

func (s *SQLiteStore) LatestSucceeded(ctx context.Context, deploymentID string) (*RunRecord, error) {
	return getRun(ctx, s.db,
		`SELECT * FROM runs WHERE deployment_id = ? AND outcome = 'succeeded' ORDER BY started_at DESC LIMIT 1`,
		"LatestSucceeded", deploymentID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, deploymentID string, opts ListOptions) ([]RunRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs WHERE deployment_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, deploymentID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRuns", deploymentID, err.Error(), err)
	}

	runs := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func getRun(ctx context.Context, exec executor, query, op, arg string) (*RunRecord, error) {
	var row runRow
	if err := exec.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError(op, arg, "run not found", ErrNotFound)
		}
		return nil, NewStoreError(op, arg, err.Error(), err)
	}
	return rowToRun(&row)
}

// =============================================================================
// Row Conversion
// =============================================================================

func runToRow(run *RunRecord) map[string]any {
	var finishedAt *string
	if run.FinishedAt != nil {
		s := run.FinishedAt.UTC().Format(timeLayout)
		finishedAt = &s
	}
	return map[string]any{
		"id":                 run.ID,
		"deployment_id":      run.DeploymentID,
		"service":            run.Service,
		"stage":              run.Stage,
		"region":             run.Region,
		"stack_name":         run.StackName,
		"bucket":             run.Bucket,
		"artifact_directory": run.ArtifactDirectory,
		"operation_token":    run.OperationToken,
		"outcome":            string(run.Outcome),
		"failed_step":        run.FailedStep,
		"error_message":      run.ErrorMessage,
		"started_at":         run.StartedAt.UTC().Format(timeLayout),
		"finished_at":        finishedAt,
	}
}

func rowToRun(row *runRow) (*RunRecord, error) {
	startedAt, err := time.Parse(timeLayout, row.StartedAt)
	if err != nil {
		return nil, NewStoreError("rowToRun", row.ID, "invalid started_at", ErrInvalidData)
	}

	run := &RunRecord{
		ID:                row.ID,
		DeploymentID:      row.DeploymentID,
		Service:           row.Service,
		Stage:             row.Stage,
		Region:            row.Region,
		StackName:         row.StackName,
		Bucket:            row.Bucket,
		ArtifactDirectory: row.ArtifactDirectory,
		OperationToken:    row.OperationToken,
		Outcome:           Outcome(row.Outcome),
		FailedStep:        row.FailedStep,
		ErrorMessage:      row.ErrorMessage,
		StartedAt:         startedAt,
	}
	if row.FinishedAt != nil {
		finishedAt, err := time.Parse(timeLayout, *row.FinishedAt)
		if err != nil {
			return nil, NewStoreError("rowToRun", row.ID, "invalid finished_at", ErrInvalidData)
		}
		run.FinishedAt = &finishedAt
	}
	return run, nil
}
