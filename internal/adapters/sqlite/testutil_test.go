// Package sqlite_test contains integration tests for SQLite repositories.
//
// All test setup uses db.GetSchemaSQL() so tests run against the
// authoritative schema; do not hardcode CREATE TABLE statements here.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative
// schema. This is the single shared setup function for all repository
// tests.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if _, err = testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// testEvent builds an inbound event with sane defaults.
func testEvent(userID string, messageID int64, payload string) event.Inbound {
	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).Add(time.Duration(messageID) * time.Minute)
	return event.Inbound{
		UserID:          userID,
		MessageID:       messageID,
		SourceTimestamp: ts,
		Payload:         payload,
		ReceivedAt:      ts.Add(time.Second),
	}
}
