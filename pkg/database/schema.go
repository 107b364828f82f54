package database

import (
	"database/sql"
	"fmt"
)

// Schema bootstrap is idempotent: every statement is IF NOT EXISTS, so it
// runs safely on every startup. Decimal amounts are stored as TEXT to keep
// exact values; the partial unique index enforces at most one running timer
// per session at the storage level as well.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	credits TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_a     TEXT NOT NULL REFERENCES users(id),
	user_b     TEXT NOT NULL REFERENCES users(id),
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	ended_at   DATETIME
);

CREATE TABLE IF NOT EXISTS session_timers (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	teacher    TEXT NOT NULL REFERENCES users(id),
	started_at DATETIME NOT NULL,
	stopped_at DATETIME
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	amount      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	session_id  TEXT REFERENCES sessions(id),
	description TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bank (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	credits TEXT NOT NULL DEFAULT '0'
);

CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active);
CREATE INDEX IF NOT EXISTS idx_timers_session ON session_timers(session_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_timers_one_running
	ON session_timers(session_id) WHERE stopped_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_user
	ON credit_transactions(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_session
	ON credit_transactions(session_id);

INSERT OR IGNORE INTO bank (id, credits) VALUES (1, '0');
`

// Bootstrap creates the schema and seeds the bank's singleton row.
func Bootstrap(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return nil
}
