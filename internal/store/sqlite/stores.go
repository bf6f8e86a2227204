// Package sqlite implements the store interfaces on a local SQLite file for
// standalone deployments. The schema is created on open; no external
// migration step is needed.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/freightdesk/convoy/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS debounce_batches (
	contact TEXT PRIMARY KEY,
	pending TEXT NOT NULL DEFAULT '[]',
	fencing_token REAL NOT NULL DEFAULT 0,
	timer_active INTEGER NOT NULL DEFAULT 0,
	last_message_at INTEGER NOT NULL DEFAULT 0,
	last_text TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS negotiations (
	contact TEXT NOT NULL,
	session_bucket TEXT NOT NULL,
	session_pointer TEXT NOT NULL,
	session_started_at TEXT,
	memory_stamp TEXT,
	facts TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (contact, session_bucket)
);
CREATE TABLE IF NOT EXISTS message_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact TEXT NOT NULL,
	role TEXT NOT NULL,
	kind TEXT,
	text TEXT NOT NULL,
	sent_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_contact ON message_history(contact, id);
CREATE TABLE IF NOT EXISTS response_counters (
	contact TEXT PRIMARY KEY,
	responses INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteStores creates all stores backed by a SQLite file (standalone
// mode).
func NewSQLiteStores(cfg store.Config) (*store.Stores, error) {
	path := cfg.Path
	if path == "" {
		path = "convoy.db"
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is serialized; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &store.Stores{
		Debounce: NewDebounceStore(db),
		Ledger:   NewLedgerStore(db),
		History:  NewHistoryStore(db),
		Close:    db.Close,
	}, nil
}
