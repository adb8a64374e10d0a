package store

import (
	"context"
	"database/sql"
	"fmt"
)

// tables lists every table owned by the store, leaf-first so drops and bulk
// deletes read naturally even though foreign keys are disabled around them.
var tables = []string{"attendance", "records", "event_dates", "events", "users"}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id_number        TEXT PRIMARY KEY,
	first_name       TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL DEFAULT '',
	block_id         INTEGER NOT NULL DEFAULT 0,
	block_name       TEXT NOT NULL DEFAULT '',
	department_id    INTEGER NOT NULL DEFAULT 0,
	department_name  TEXT NOT NULL DEFAULT '',
	course_id        INTEGER NOT NULL DEFAULT 0,
	course_name      TEXT NOT NULL DEFAULT '',
	year_level       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	venue       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_by  TEXT NOT NULL DEFAULT '',
	approved_by TEXT,
	am_in       TEXT,
	am_out      TEXT,
	pm_in       TEXT,
	pm_out      TEXT,
	duration    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS event_dates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   INTEGER NOT NULL,
	event_date TEXT NOT NULL,
	FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS attendance (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	event_date_id     INTEGER NOT NULL,
	student_id_number TEXT NOT NULL,
	am_in             INTEGER NOT NULL DEFAULT 0,
	am_out            INTEGER NOT NULL DEFAULT 0,
	pm_in             INTEGER NOT NULL DEFAULT 0,
	pm_out            INTEGER NOT NULL DEFAULT 0,
	am_in_time        TEXT,
	am_out_time       TEXT,
	pm_in_time        TEXT,
	pm_out_time       TEXT,
	UNIQUE (event_date_id, student_id_number),
	FOREIGN KEY (event_date_id) REFERENCES event_dates(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS records (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id          INTEGER NOT NULL,
	event_name        TEXT NOT NULL,
	event_date        TEXT NOT NULL,
	student_id_number TEXT NOT NULL DEFAULT '',
	am_in             INTEGER NOT NULL DEFAULT 0,
	am_out            INTEGER NOT NULL DEFAULT 0,
	pm_in             INTEGER NOT NULL DEFAULT 0,
	pm_out            INTEGER NOT NULL DEFAULT 0,
	UNIQUE (event_id, event_date, student_id_number)
);

CREATE INDEX IF NOT EXISTS idx_event_dates_event ON event_dates(event_id);
CREATE INDEX IF NOT EXISTS idx_attendance_event_date ON attendance(event_date_id);
CREATE INDEX IF NOT EXISTS idx_records_event ON records(event_id, event_date);
`

// createSchema creates all tables and indexes. Idempotent: safe to run
// against an already-migrated database.
func createSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ClearAllData implements Store. Every table is emptied but the schema is
// kept. Foreign keys are disabled for the duration so the deletes need no
// particular ordering across dependent tables.
func (m *Manager) ClearAllData(ctx context.Context) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}
	return withoutForeignKeys(ctx, conn, m, func() error {
		for _, table := range tables {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// DropAllTables implements Store. Every table is dropped and the schema is
// recreated from scratch.
func (m *Manager) DropAllTables(ctx context.Context) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}
	err = withoutForeignKeys(ctx, conn, m, func() error {
		for _, table := range tables {
			if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return createSchema(ctx, conn)
}

// withoutForeignKeys runs fn with foreign key enforcement off, restoring it
// afterwards even when fn fails.
func withoutForeignKeys(ctx context.Context, conn *sql.DB, m *Manager, fn func() error) error {
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			m.logger.Printf("warning: failed to re-enable foreign keys: %v", err)
		}
	}()
	return fn()
}
