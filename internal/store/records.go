package store

import (
	"context"
	"fmt"

	"github.com/campuspass/eventlog/internal/model"
)

// SaveRecords implements Store.
//
// The records table is a disposable snapshot, not a durable ledger: the
// input is the complete authoritative set, so the whole operation is one
// transaction that clears the table and repopulates it. Per-row inserts use
// INSERT OR IGNORE so duplicate tuples inside the input collapse silently.
func (m *Manager) SaveRecords(ctx context.Context, rows []model.Record) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO records (
		event_id, event_name, event_date, student_id_number,
		am_in, am_out, pm_in, pm_out
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.EventID, r.EventName, r.EventDate, r.StudentIDNumber,
			boolToInt(r.AmIn), boolToInt(r.AmOut), boolToInt(r.PmIn), boolToInt(r.PmOut),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record for event %d on %s: %w", r.EventID, r.EventDate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// ListRecords implements Store. The stored 0/1 integer flags come back as
// strict booleans; no raw integer representation leaks past this point.
func (m *Manager) ListRecords(ctx context.Context) ([]model.Record, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, event_id, event_name, event_date, student_id_number,
	       am_in, am_out, pm_in, pm_out
	FROM records
	ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		var amIn, amOut, pmIn, pmOut int64
		err := rows.Scan(
			&r.ID, &r.EventID, &r.EventName, &r.EventDate, &r.StudentIDNumber,
			&amIn, &amOut, &pmIn, &pmOut,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.AmIn = amIn == 1
		r.AmOut = amOut == 1
		r.PmIn = pmIn == 1
		r.PmOut = pmOut == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}
