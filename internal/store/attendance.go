package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspass/eventlog/internal/model"
)

// UpsertAttendance implements Store.
//
// The whole write is a single statement, so concurrent scans for the same
// (event date, student) pair can never race into two rows. On conflict only
// the newly satisfied flags and their timestamps change; a flag that is
// already set keeps both its value and its original timestamp.
func (m *Manager) UpsertAttendance(ctx context.Context, eventDateID int64, studentID string, slots model.SlotFlags) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO attendance (
		event_date_id, student_id_number,
		am_in, am_out, pm_in, pm_out,
		am_in_time, am_out_time, pm_in_time, pm_out_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_date_id, student_id_number) DO UPDATE SET
		am_in_time  = CASE WHEN excluded.am_in  = 1 AND am_in  = 0 THEN excluded.am_in_time  ELSE am_in_time  END,
		am_out_time = CASE WHEN excluded.am_out = 1 AND am_out = 0 THEN excluded.am_out_time ELSE am_out_time END,
		pm_in_time  = CASE WHEN excluded.pm_in  = 1 AND pm_in  = 0 THEN excluded.pm_in_time  ELSE pm_in_time  END,
		pm_out_time = CASE WHEN excluded.pm_out = 1 AND pm_out = 0 THEN excluded.pm_out_time ELSE pm_out_time END,
		am_in  = CASE WHEN excluded.am_in  = 1 THEN 1 ELSE am_in  END,
		am_out = CASE WHEN excluded.am_out = 1 THEN 1 ELSE am_out END,
		pm_in  = CASE WHEN excluded.pm_in  = 1 THEN 1 ELSE pm_in  END,
		pm_out = CASE WHEN excluded.pm_out = 1 THEN 1 ELSE pm_out END
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = conn.ExecContext(ctx, query,
		eventDateID, studentID,
		boolToInt(slots.AmIn), boolToInt(slots.AmOut), boolToInt(slots.PmIn), boolToInt(slots.PmOut),
		flagTime(slots.AmIn, now), flagTime(slots.AmOut, now), flagTime(slots.PmIn, now), flagTime(slots.PmOut, now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance for %s on date %d: %w", studentID, eventDateID, err)
	}
	return nil
}

// ListAttendance implements Store.
func (m *Manager) ListAttendance(ctx context.Context) ([]model.Attendance, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, event_date_id, student_id_number,
	       am_in, am_out, pm_in, pm_out,
	       am_in_time, am_out_time, pm_in_time, pm_out_time
	FROM attendance
	ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		var a model.Attendance
		var amIn, amOut, pmIn, pmOut sql.NullInt64
		var amInT, amOutT, pmInT, pmOutT sql.NullString

		err := rows.Scan(
			&a.ID, &a.EventDateID, &a.StudentIDNumber,
			&amIn, &amOut, &pmIn, &pmOut,
			&amInT, &amOutT, &pmInT, &pmOutT,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}

		a.AmIn = flagFromColumn(amIn)
		a.AmOut = flagFromColumn(amOut)
		a.PmIn = flagFromColumn(pmIn)
		a.PmOut = flagFromColumn(pmOut)
		a.AmInTime = timeFromColumn(amInT)
		a.AmOutTime = timeFromColumn(amOutT)
		a.PmInTime = timeFromColumn(pmInT)
		a.PmOutTime = timeFromColumn(pmOutT)

		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}
	return out, nil
}

// PurgeAttendance implements Store.
func (m *Manager) PurgeAttendance(ctx context.Context) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM attendance"); err != nil {
		return fmt.Errorf("failed to purge attendance: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// flagTime returns the timestamp to store alongside a flag: the scan time
// when the slot was satisfied, NULL otherwise.
func flagTime(set bool, now string) sql.NullString {
	if !set {
		return sql.NullString{}
	}
	return sql.NullString{String: now, Valid: true}
}

// flagFromColumn maps a stored flag to its tri-state form: 1 and 0 become
// true and false, anything else (NULL, stray values) is unknown.
func flagFromColumn(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	switch v.Int64 {
	case 1:
		t := true
		return &t
	case 0:
		f := false
		return &f
	default:
		return nil
	}
}

func timeFromColumn(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
