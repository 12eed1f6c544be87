package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/courier/internal/ports/secondary"
)

// SweepRunRepository implements secondary.SweepRunRepository with
// SQLite. Sweep rows are written once, after the sweep finishes.
type SweepRunRepository struct {
	db *sql.DB
}

// NewSweepRunRepository creates a new SQLite sweep run repository.
func NewSweepRunRepository(db *sql.DB) *SweepRunRepository {
	return &SweepRunRepository{db: db}
}

// Record inserts one finished sweep audit row.
func (r *SweepRunRepository) Record(ctx context.Context, run *secondary.SweepRunRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sweep_runs (id, kind, started_at, completed_at, rows_affected, status, error_details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt, run.CompletedAt, run.RowsAffected, run.Status, nullIfEmpty(run.ErrorDetails),
	)
	if err != nil {
		return fmt.Errorf("failed to record sweep run: %w", err)
	}
	return nil
}

// List returns recent sweep rows of one kind, newest first.
func (r *SweepRunRepository) List(ctx context.Context, kind string, limit int) ([]*secondary.SweepRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, started_at, completed_at, rows_affected, status, error_details
		 FROM sweep_runs WHERE kind = ? ORDER BY started_at DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []*secondary.SweepRunRecord
	for rows.Next() {
		var (
			run          secondary.SweepRunRecord
			errorDetails sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &run.CompletedAt,
			&run.RowsAffected, &run.Status, &errorDetails); err != nil {
			return nil, fmt.Errorf("failed to scan sweep run: %w", err)
		}
		run.ErrorDetails = errorDetails.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
