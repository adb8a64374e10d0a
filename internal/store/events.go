package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuspass/eventlog/internal/model"
)

// ReplaceEventCache implements Store.
//
// The cached event list mirrors the remote listing, so a refresh replaces
// it wholesale: one transaction deletes every event (dates cascade) and
// reinserts the new set. Events that carry a remote id keep it; events
// without one get a local auto-assigned id.
func (m *Manager) ReplaceEventCache(ctx context.Context, events []model.Event) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("failed to clear event cache: %w", err)
	}

	for _, ev := range events {
		var id sql.NullInt64
		if ev.ID != 0 {
			id = sql.NullInt64{Int64: ev.ID, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, name, venue, description, status, created_by, approved_by,
		                    am_in, am_out, pm_in, pm_out, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, ev.Name, ev.Venue, ev.Description, ev.Status, ev.CreatedBy,
			nullString(ev.ApprovedBy),
			nullString(ev.AmIn), nullString(ev.AmOut), nullString(ev.PmIn), nullString(ev.PmOut),
			ev.Duration,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %q: %w", ev.Name, err)
		}

		eventID := ev.ID
		if eventID == 0 {
			eventID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to resolve event id for %q: %w", ev.Name, err)
			}
		}
		for _, d := range ev.Dates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO event_dates (event_id, event_date) VALUES (?, ?)`,
				eventID, d.Date,
			); err != nil {
				return fmt.Errorf("failed to insert date %s for event %d: %w", d.Date, eventID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event cache: %w", err)
	}
	return nil
}

// CachedEvents implements Store.
func (m *Manager) CachedEvents(ctx context.Context) ([]model.Event, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, name, venue, description, status, created_by, approved_by,
	       am_in, am_out, pm_in, pm_out, duration
	FROM events
	ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	index := make(map[int64]int)
	for rows.Next() {
		var ev model.Event
		var approvedBy, amIn, amOut, pmIn, pmOut sql.NullString
		err := rows.Scan(
			&ev.ID, &ev.Name, &ev.Venue, &ev.Description, &ev.Status, &ev.CreatedBy,
			&approvedBy, &amIn, &amOut, &pmIn, &pmOut, &ev.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.ApprovedBy = stringPtr(approvedBy)
		ev.AmIn = stringPtr(amIn)
		ev.AmOut = stringPtr(amOut)
		ev.PmIn = stringPtr(pmIn)
		ev.PmOut = stringPtr(pmOut)

		index[ev.ID] = len(events)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	dateRows, err := conn.QueryContext(ctx,
		`SELECT id, event_id, event_date FROM event_dates ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event dates: %w", err)
	}
	defer dateRows.Close()

	for dateRows.Next() {
		var d model.EventDate
		if err := dateRows.Scan(&d.ID, &d.EventID, &d.Date); err != nil {
			return nil, fmt.Errorf("failed to scan event date: %w", err)
		}
		if i, ok := index[d.EventID]; ok {
			events[i].Dates = append(events[i].Dates, d)
		}
	}
	if err := dateRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event dates: %w", err)
	}

	return events, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
