package store

import (
	"context"
	"fmt"

	"github.com/campuspass/eventlog/internal/model"
)

// UpsertUser implements Store. Roster rows are created on first sync and
// updated in place afterwards; they are only removed by a full local wipe.
func (m *Manager) UpsertUser(ctx context.Context, u model.User) error {
	conn, err := m.connection(ctx)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO users (
		id_number, first_name, last_name, role,
		block_id, block_name, department_id, department_name,
		course_id, course_name, year_level
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id_number) DO UPDATE SET
		first_name      = excluded.first_name,
		last_name       = excluded.last_name,
		role            = excluded.role,
		block_id        = excluded.block_id,
		block_name      = excluded.block_name,
		department_id   = excluded.department_id,
		department_name = excluded.department_name,
		course_id       = excluded.course_id,
		course_name     = excluded.course_name,
		year_level      = excluded.year_level
	`

	_, err = conn.ExecContext(ctx, query,
		u.IDNumber, u.FirstName, u.LastName, u.Role,
		u.BlockID, u.BlockName, u.DepartmentID, u.DepartmentName,
		u.CourseID, u.CourseName, u.YearLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.IDNumber, err)
	}
	return nil
}
