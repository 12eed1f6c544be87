package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/courier/internal/ctxutil"
)

// LogWriterAdapter implements secondary.LogWriter against the audit_log
// table. The acting identity is taken from context; entries without an
// actor are still recorded so machine-driven mutations stay auditable.
type LogWriterAdapter struct {
	db *sql.DB
}

// NewLogWriterAdapter creates a new LogWriterAdapter.
func NewLogWriterAdapter(db *sql.DB) *LogWriterAdapter {
	return &LogWriterAdapter{db: db}
}

// LogCreate logs a create operation for an entity.
func (w *LogWriterAdapter) LogCreate(ctx context.Context, entityType, entityID string) error {
	return w.writeLog(ctx, entityType, entityID, "create", "", "", "")
}

// LogUpdate logs an update operation for an entity field.
func (w *LogWriterAdapter) LogUpdate(ctx context.Context, entityType, entityID, fieldName, oldValue, newValue string) error {
	return w.writeLog(ctx, entityType, entityID, "update", fieldName, oldValue, newValue)
}

// LogDelete logs a delete operation for an entity.
func (w *LogWriterAdapter) LogDelete(ctx context.Context, entityType, entityID string) error {
	return w.writeLog(ctx, entityType, entityID, "delete", "", "", "")
}

func (w *LogWriterAdapter) writeLog(ctx context.Context, entityType, entityID, operation, fieldName, oldValue, newValue string) error {
	actor := ctxutil.ActorFromContext(ctx)
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO audit_log (entity_type, entity_id, operation, field_name, old_value, new_value, actor)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entityType, entityID, operation,
		nullIfEmpty(fieldName), nullIfEmpty(oldValue), nullIfEmpty(newValue), nullIfEmpty(actor))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
