package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/pipeline"
)

// StageResultRepository implements secondary.StageResultRepository with
// SQLite. Commits are idempotent on (event identity, stage): a crash or
// cancellation between stages leaves either a full committed result or
// nothing.
type StageResultRepository struct {
	db *sql.DB
}

// NewStageResultRepository creates a new SQLite stage result repository.
func NewStageResultRepository(db *sql.DB) *StageResultRepository {
	return &StageResultRepository{db: db}
}

// Completed returns every committed stage output for the event.
func (r *StageResultRepository) Completed(ctx context.Context, id event.Identity) (map[pipeline.Stage]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT stage, output FROM stage_results WHERE user_id = ? AND message_id = ?`,
		id.UserID, id.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage results: %w", err)
	}
	defer rows.Close()

	results := make(map[pipeline.Stage]string)
	for rows.Next() {
		var (
			stage  string
			output string
		)
		if err := rows.Scan(&stage, &output); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		results[pipeline.Stage(stage)] = output
	}
	return results, rows.Err()
}

// Commit persists one stage output. The first write wins; replays keep
// the original result.
func (r *StageResultRepository) Commit(ctx context.Context, id event.Identity, stage pipeline.Stage, output string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stage_results (user_id, message_id, stage, output, completed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id.UserID, id.MessageID, string(stage), output, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to commit stage result: %w", err)
	}
	return nil
}
