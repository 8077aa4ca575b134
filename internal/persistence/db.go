// Package persistence provides the sqlite-backed stores shared by the
// proposal store, the run registry, and the scheduler's task table, plus
// the small flat-JSON documents (watermarks, sessions, registered groups)
// that don't warrant a table.
package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the current ledger entry. Bumping it and adding a case to
// migrate is how every future schema change to this database is made.
const schemaVersion = 2

// Open opens (creating if necessary) the sqlite database at path and applies
// any pending migrations, gated by a schema_version ledger table exactly
// like the one the proposal/run tables live under.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&current); err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return err
	}

	for v := current + 1; v <= schemaVersion; v++ {
		if err := applyMigration(db, v); err != nil {
			return fmt.Errorf("apply migration v%d: %w", v, err)
		}
	}

	if current == 0 {
		_, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
		return err
	}
	if current < schemaVersion {
		_, err := db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion)
		return err
	}
	return nil
}

func applyMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return applyV1(db)
	case 2:
		return applyV2(db)
	default:
		return fmt.Errorf("no migration defined for schema version %d", version)
	}
}

func applyV1(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS proposals (
			id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			group_folder TEXT NOT NULL DEFAULT '',
			request_text TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			actions_json TEXT NOT NULL,
			raw_plan_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			decided_at TEXT,
			decision_reason TEXT,
			decided_by TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_chat_status ON proposals(chat_id, status)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			action_type TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			result_text TEXT,
			error_text TEXT,
			cancel_requested INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func applyV2(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			group_folder TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			schedule_type TEXT NOT NULL,
			schedule_value TEXT NOT NULL,
			status TEXT NOT NULL,
			next_run TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(status, next_run)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
