// Package store owns the on-device relational database: schema creation,
// connection lifecycle, validation, recovery by recreation, and the
// destructive reset operations used on logout.
//
// The database is embedded SQLite (ncruces/go-sqlite3) opened in WAL mode
// with foreign keys enforced. Exactly one live connection is held per
// Manager; concurrent callers during initialization wait on the in-flight
// initialization rather than racing to create duplicates.
//
// Platforms without filesystem-backed storage use the Unsupported
// implementation of Store instead; every call returns ErrUnsupported.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/campuspass/eventlog/internal/model"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrUnsupported is returned by every operation of the no-op store used
	// on platforms without a filesystem-backed database.
	ErrUnsupported = errors.New("local store not supported on this platform")

	// ErrUnavailable means initialization failed even after recovery; local
	// persistence is off for this session. Callers should degrade, not crash.
	ErrUnavailable = errors.New("local store unavailable")

	// errValidation names the case where the database opened cleanly but the
	// post-open validation probe failed, so recovery logs a cause.
	errValidation = errors.New("opened database failed validation")
)

const (
	// initWait bounds how long a caller blocks on another caller's in-flight
	// initialization before settling for the then-current handle.
	initWait = 5 * time.Second

	// recreateDelay is the pause before the single recovery attempt after a
	// failed initialization.
	recreateDelay = 500 * time.Millisecond
)

// Counts summarizes the local buffer and cache sizes, for status reporting.
type Counts struct {
	Attendance int
	Records    int
	Events     int
	Users      int
}

// Store is the capability interface over local persistence. Manager is the
// real file-backed implementation; Unsupported is the no-op selected on
// platforms without a local database.
type Store interface {
	// UpsertAttendance records that a student satisfied the given schedule
	// slots on an event date. Existing rows gain the newly satisfied flags;
	// flags already set are never unset.
	UpsertAttendance(ctx context.Context, eventDateID int64, studentID string, slots model.SlotFlags) error

	// ListAttendance returns every buffered attendance row.
	ListAttendance(ctx context.Context) ([]model.Attendance, error)

	// PurgeAttendance deletes every buffered attendance row.
	PurgeAttendance(ctx context.Context) error

	// SaveRecords replaces the entire records buffer with rows, in one
	// transaction. Duplicate (event_id, event_date, student) tuples within
	// rows collapse to a single row.
	SaveRecords(ctx context.Context, rows []model.Record) error

	// ListRecords returns every record row with flags as strict booleans.
	ListRecords(ctx context.Context) ([]model.Record, error)

	// UpsertUser creates or updates a roster cache row.
	UpsertUser(ctx context.Context, u model.User) error

	// ReplaceEventCache replaces the cached event list and its dates.
	ReplaceEventCache(ctx context.Context, events []model.Event) error

	// CachedEvents returns the cached events with their date lists.
	CachedEvents(ctx context.Context) ([]model.Event, error)

	// Counts reports table sizes.
	Counts(ctx context.Context) (Counts, error)

	// ClearAllData empties every table but keeps the schema.
	ClearAllData(ctx context.Context) error

	// DropAllTables drops every table and recreates the schema.
	DropAllTables(ctx context.Context) error

	Close() error
}

// Manager is the file-backed Store. The connection is created lazily on
// first use, validated before reuse, and recreated from scratch (delete +
// reopen + re-migrate) if validation keeps failing.
type Manager struct {
	path   string
	logger *log.Logger

	mu   sync.Mutex
	conn *sql.DB
	init chan struct{} // non-nil while an initialization is in flight
}

// NewManager creates a Manager for the database file at path. The file is
// not opened until the first operation. If logger is nil, a default logger
// writing to stderr is used.
func NewManager(path string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Manager{path: path, logger: logger}
}

// Close closes the live connection, if any. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.logger.Printf("warning: failed to checkpoint WAL: %v", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// connection returns the live connection, creating it if absent. A stale
// connection (one that fails validation) is discarded and replaced. Callers
// that arrive while another caller is initializing wait up to initWait and
// then settle for whatever handle exists.
func (m *Manager) connection(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	for {
		for m.init != nil {
			done := m.init
			m.mu.Unlock()
			select {
			case <-done:
			case <-time.After(initWait):
				m.mu.Lock()
				conn := m.conn
				m.mu.Unlock()
				if conn == nil {
					return nil, ErrUnavailable
				}
				return conn, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			m.mu.Lock()
		}

		if m.conn == nil {
			break
		}
		conn := m.conn
		m.mu.Unlock()
		if validate(ctx, conn) {
			return conn, nil
		}
		m.logger.Printf("connection failed validation, reopening")
		m.mu.Lock()
		if m.conn == conn {
			_ = conn.Close()
			m.conn = nil
		}
		// Re-enter the loop with the lock held: while validation was
		// running another caller may have replaced the handle or started
		// an initialization of its own, and only one may be in flight.
	}

	done := make(chan struct{})
	m.init = done
	m.mu.Unlock()

	conn, err := m.initialize(ctx)

	m.mu.Lock()
	m.conn = conn
	m.init = nil
	close(done)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return conn, nil
}

// initialize opens and migrates the database. A failed first attempt
// triggers exactly one recovery cycle (delete the file and start over);
// a second failure surfaces ErrUnavailable.
func (m *Manager) initialize(ctx context.Context) (*sql.DB, error) {
	conn, err := m.open(ctx)
	if err == nil {
		if validate(ctx, conn) {
			return conn, nil
		}
		err = errValidation
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Printf("store initialization failed, recreating: %v", err)
	time.Sleep(recreateDelay)

	conn, err = m.recreate(ctx)
	if err != nil {
		m.logger.Printf("store recreation failed, local persistence unavailable: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

// open opens the database file and runs the idempotent schema migration.
func (m *Manager) open(ctx context.Context) (*sql.DB, error) {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single local writer; a small pool is plenty.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := createSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// recreate deletes the underlying storage file (and its WAL siblings),
// reopens and re-migrates. Last-resort recovery for a database that fails
// validation even when freshly opened.
func (m *Manager) recreate(ctx context.Context) (*sql.DB, error) {
	for _, p := range []string{m.path, m.path + "-wal", m.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	conn, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	if !validate(ctx, conn) {
		_ = conn.Close()
		return nil, fmt.Errorf("recreated database failed validation")
	}
	return conn, nil
}

// validate runs a trivial statement plus a catalog probe. It never returns
// an error: any failure means "invalid".
func validate(ctx context.Context, conn *sql.DB) bool {
	if conn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='attendance'`).Scan(&n)
	return err == nil && n == 1
}

// Counts implements Store.
func (m *Manager) Counts(ctx context.Context) (Counts, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"attendance", &c.Attendance},
		{"records", &c.Records},
		{"events", &c.Events},
		{"users", &c.Users},
	} {
		if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return c, nil
}
