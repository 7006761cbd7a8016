// Package stores persists run history in a local SQLite journal.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/desktide/desktide/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records completed runs and their per-resource outcomes.
type Journal struct {
	db     *sql.DB
	config Config
}

// Config holds journal database configuration. Connection settings
// default to a single connection, which is what a local SQLite file
// wants.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewJournal creates a journal backed by the SQLite database at
// cfg.Path. Call Init before use.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 1
	}
	return &Journal{config: cfg}, nil
}

// Init opens the database, enables WAL mode and runs migrations.
func (j *Journal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", j.config.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(j.config.MaxOpenConns)
	db.SetMaxIdleConns(j.config.MaxIdleConns)
	if j.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(j.config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	j.db = db
	return j.migrate()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveReport persists a finished run and all of its outcomes in one
// transaction.
func (j *Journal) SaveReport(ctx context.Context, configPath string, report *engine.RunReport) error {
	if j.db == nil {
		return fmt.Errorf("journal not initialized")
	}

	flags, err := json.Marshal(report.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fatal *string
	if report.FatalFailure != nil {
		id := report.FatalFailure.ResourceID
		fatal = &id
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plan_id, config_path, started_at, completed_at, applied, skipped, failed, fatal_resource, flags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.PlanID,
		configPath,
		report.StartedAt,
		report.CompletedAt,
		report.Summary.Applied,
		report.Summary.Skipped,
		report.Summary.Failed,
		fatal,
		string(flags),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, o := range report.Outcomes {
		var errMsg *string
		if o.Err != nil {
			msg := o.Err.Error()
			errMsg = &msg
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, resource_id, kind, status, reason, error, attempts, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.RunID,
			o.ResourceID,
			string(o.Kind),
			string(o.Status),
			o.Reason,
			errMsg,
			o.Attempts,
			o.StartedAt,
			o.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.ResourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, plan_id, config_path, started_at, completed_at, applied, skipped, failed, fatal_resource, flags, created_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		r := &RunRecord{}
		if err := rows.Scan(
			&r.ID, &r.PlanID, &r.ConfigPath, &r.StartedAt, &r.CompletedAt,
			&r.Applied, &r.Skipped, &r.Failed, &r.FatalResource, &r.Flags, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves one run and its outcomes.
func (j *Journal) GetRun(ctx context.Context, id string) (*RunRecord, []*OutcomeRecord, error) {
	r := &RunRecord{}
	err := j.db.QueryRowContext(ctx, `
		SELECT id, plan_id, config_path, started_at, completed_at, applied, skipped, failed, fatal_resource, flags, created_at
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&r.ID, &r.PlanID, &r.ConfigPath, &r.StartedAt, &r.CompletedAt,
		&r.Applied, &r.Skipped, &r.Failed, &r.FatalResource, &r.Flags, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, resource_id, kind, status, reason, error, attempts, started_at, completed_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY started_at ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*OutcomeRecord{}
	for rows.Next() {
		o := &OutcomeRecord{}
		if err := rows.Scan(
			&o.RunID, &o.ResourceID, &o.Kind, &o.Status, &o.Reason,
			&o.Error, &o.Attempts, &o.StartedAt, &o.CompletedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return r, outcomes, rows.Err()
}
