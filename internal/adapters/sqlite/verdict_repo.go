package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/event"
)

// VerdictRepository implements secondary.VerdictRepository with SQLite.
// Verdicts are keyed by event identity; a replayed event keeps its
// first verdict.
type VerdictRepository struct {
	db *sql.DB
}

// NewVerdictRepository creates a new SQLite verdict repository.
func NewVerdictRepository(db *sql.DB) *VerdictRepository {
	return &VerdictRepository{db: db}
}

// Create persists a verdict. Re-creating for the same event is a no-op.
func (r *VerdictRepository) Create(ctx context.Context, v *coherence.Verdict) error {
	newCommitments, err := json.Marshal(v.NewCommitments)
	if err != nil {
		return fmt.Errorf("failed to encode new commitments: %w", err)
	}
	parsed := 0
	if v.ParseSucceeded {
		parsed = 1
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO coherence_verdicts (user_id, message_id, input_snapshot, raw_model_output,
			status, conflict_detail, original_sentence, corrected_sentence, new_commitments, parse_succeeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.UserID, v.MessageID, v.InputSnapshot, v.RawModelOutput, v.Status,
		nullIfEmpty(v.ConflictDetail), nullIfEmpty(v.OriginalSentence), nullIfEmpty(v.CorrectedSentence),
		string(newCommitments), parsed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create verdict: %w", err)
	}
	return nil
}

// GetByEvent returns the verdict for an event identity, or nil when the
// event was never classified.
func (r *VerdictRepository) GetByEvent(ctx context.Context, id event.Identity) (*coherence.Verdict, error) {
	var (
		v              coherence.Verdict
		conflictDetail sql.NullString
		original       sql.NullString
		corrected      sql.NullString
		newCommitments string
		parsed         int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, message_id, input_snapshot, raw_model_output, status, conflict_detail,
			original_sentence, corrected_sentence, new_commitments, parse_succeeded
		 FROM coherence_verdicts WHERE user_id = ? AND message_id = ?`,
		id.UserID, id.MessageID,
	).Scan(&v.UserID, &v.MessageID, &v.InputSnapshot, &v.RawModelOutput, &v.Status,
		&conflictDetail, &original, &corrected, &newCommitments, &parsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict: %w", err)
	}
	v.ConflictDetail = conflictDetail.String
	v.OriginalSentence = original.String
	v.CorrectedSentence = corrected.String
	v.ParseSucceeded = parsed != 0
	if err := json.Unmarshal([]byte(newCommitments), &v.NewCommitments); err != nil {
		return nil, fmt.Errorf("failed to decode new commitments: %w", err)
	}
	return &v, nil
}
