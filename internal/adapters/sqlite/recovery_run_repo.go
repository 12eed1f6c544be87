package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/courier/internal/ports/secondary"
)

// RecoveryRunRepository implements secondary.RecoveryRunRepository with
// SQLite. Terminal rows are immutable: Finish refuses to touch a run
// that is no longer running.
type RecoveryRunRepository struct {
	db *sql.DB
}

// NewRecoveryRunRepository creates a new SQLite recovery run repository.
func NewRecoveryRunRepository(db *sql.DB) *RecoveryRunRepository {
	return &RecoveryRunRepository{db: db}
}

// Create inserts a new running row.
func (r *RecoveryRunRepository) Create(ctx context.Context, run *secondary.RecoveryRunRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recovery_runs (id, trigger_kind, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.Trigger, run.StartedAt, secondary.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create recovery run: %w", err)
	}
	return nil
}

// Finish writes the run's terminal counters and status. Runs already
// terminal are left untouched.
func (r *RecoveryRunRepository) Finish(ctx context.Context, run *secondary.RecoveryRunRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recovery_runs SET completed_at = ?, users_checked = ?, events_recovered = ?,
			events_skipped = ?, errors = ?, error_details = ?, status = ?
		 WHERE id = ? AND status = ?`,
		run.CompletedAt, run.UsersChecked, run.EventsRecovered,
		run.EventsSkipped, run.Errors, nullIfEmpty(run.ErrorDetails), run.Status,
		run.ID, secondary.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish recovery run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish recovery run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recovery run %s is not running", run.ID)
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RecoveryRunRepository) GetByID(ctx context.Context, id string) (*secondary.RecoveryRunRecord, error) {
	run, err := scanRecoveryRun(r.db.QueryRowContext(ctx,
		`SELECT id, trigger_kind, started_at, completed_at, users_checked, events_recovered,
			events_skipped, errors, error_details, status
		 FROM recovery_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recovery run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery run: %w", err)
	}
	return run, nil
}

// List returns recent runs, newest first.
func (r *RecoveryRunRepository) List(ctx context.Context, limit int) ([]*secondary.RecoveryRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trigger_kind, started_at, completed_at, users_checked, events_recovered,
			events_skipped, errors, error_details, status
		 FROM recovery_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery runs: %w", err)
	}
	defer rows.Close()

	var runs []*secondary.RecoveryRunRecord
	for rows.Next() {
		run, err := scanRecoveryRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recovery run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecoveryRun(row rowScanner) (*secondary.RecoveryRunRecord, error) {
	var (
		run          secondary.RecoveryRunRecord
		completedAt  sql.NullTime
		errorDetails sql.NullString
	)
	err := row.Scan(&run.ID, &run.Trigger, &run.StartedAt, &completedAt, &run.UsersChecked,
		&run.EventsRecovered, &run.EventsSkipped, &run.Errors, &errorDetails, &run.Status)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.ErrorDetails = errorDetails.String
	return &run, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
