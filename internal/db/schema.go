package db

// SchemaSQL is the complete schema for fresh courier installs.
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests
// use it via GetSchemaSQL(), so repository code referencing a column
// that does not exist here fails immediately with "no such column"
// during development, not in production.
const SchemaSQL = `
-- Durable inbox: append-only, immutable after insert.
-- Identity is (user_id, message_id); duplicate appends are no-ops.
CREATE TABLE IF NOT EXISTS events (
	user_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	source_timestamp DATETIME NOT NULL,
	payload TEXT NOT NULL,
	received_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, message_id)
);

-- Per-user watermark of durably handled events.
CREATE TABLE IF NOT EXISTS cursors (
	user_id TEXT PRIMARY KEY,
	last_processed_message_id INTEGER NOT NULL DEFAULT 0,
	last_processed_at DATETIME,
	last_recovery_check_at DATETIME,
	total_recovered INTEGER NOT NULL DEFAULT 0
);

-- Audit rows for recovery passes. Terminal rows are never updated.
CREATE TABLE IF NOT EXISTS recovery_runs (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL CHECK(trigger_kind IN ('startup', 'periodic', 'manual')),
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	users_checked INTEGER NOT NULL DEFAULT 0,
	events_recovered INTEGER NOT NULL DEFAULT 0,
	events_skipped INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	error_details TEXT,
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')) DEFAULT 'running'
);

-- Audit rows for background expiry sweeps.
CREATE TABLE IF NOT EXISTS sweep_runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('quarantine_expiry', 'commitment_expiry')),
	started_at DATETIME NOT NULL,
	completed_at DATETIME NOT NULL,
	rows_affected INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('completed', 'failed')),
	error_details TEXT
);

-- Per-user quarantine protocol state.
CREATE TABLE IF NOT EXISTS protocol_states (
	user_id TEXT PRIMARY KEY,
	status TEXT NOT NULL CHECK(status IN ('ACTIVE', 'INACTIVE')) DEFAULT 'INACTIVE',
	activated_by TEXT,
	activated_at DATETIME,
	reason TEXT,
	quarantined_count INTEGER NOT NULL DEFAULT 0,
	cost_saved REAL NOT NULL DEFAULT 0,
	pending_pass INTEGER NOT NULL DEFAULT 0
);

-- Append-only transition log for the quarantine protocol.
CREATE TABLE IF NOT EXISTS protocol_audit (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL CHECK(action IN ('ACTIVATED', 'DEACTIVATED', 'ONE_TIME_PASS')),
	actor TEXT NOT NULL,
	previous_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

-- Messages diverted by the quarantine gate.
CREATE TABLE IF NOT EXISTS quarantined_messages (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	payload TEXT NOT NULL,
	received_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	processed_at DATETIME,
	processed_by TEXT,
	UNIQUE(user_id, message_id)
);

-- Per-user commitment ledger. Linked to the extracting event by
-- identity, not by foreign-key back-pointers.
CREATE TABLE IF NOT EXISTS commitments (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	commitment_time DATETIME NOT NULL,
	activity TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	flexibility TEXT,
	source_text TEXT,
	from_message_id INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('active', 'fulfilled', 'expired', 'cancelled')) DEFAULT 'active',
	signature TEXT NOT NULL,
	times_asserted INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_commitments_user_status ON commitments(user_id, status);

-- Coherence verdicts, at most one per event.
CREATE TABLE IF NOT EXISTS coherence_verdicts (
	user_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	input_snapshot TEXT NOT NULL,
	raw_model_output TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('OK', 'IDENTITY_CONFLICT', 'AVAILABILITY_CONFLICT')),
	conflict_detail TEXT,
	original_sentence TEXT,
	corrected_sentence TEXT,
	new_commitments TEXT,
	parse_succeeded INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, message_id)
);

-- Human-approval checkpoint, one row per admitted event.
CREATE TABLE IF NOT EXISTS review_items (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	candidate_output TEXT NOT NULL,
	verdict_status TEXT NOT NULL,
	approval_state TEXT NOT NULL CHECK(approval_state IN ('pending', 'approved', 'rejected', 'edited')) DEFAULT 'pending',
	edited_output TEXT,
	edit_tags TEXT,
	reviewer TEXT,
	decided_at DATETIME,
	delivered_at DATETIME,
	created_at DATETIME NOT NULL,
	UNIQUE(user_id, message_id)
);

-- Idempotent per-stage pipeline outputs keyed by event identity.
CREATE TABLE IF NOT EXISTS stage_results (
	user_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	stage TEXT NOT NULL,
	output TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, message_id, stage)
);

-- Generic audit log for repository mutations.
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
	field_name TEXT,
	old_value TEXT,
	new_value TEXT,
	actor TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// InitSchema creates all tables on a fresh install. Statements are
// idempotent so re-running against an existing database is safe.
func InitSchema() error {
	db, err := GetDB()
	if err != nil {
		return err
	}
	_, err = db.Exec(SchemaSQL)
	return err
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to
// prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
