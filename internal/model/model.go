// Package model provides the data structures shared by the local store,
// the record normalizer and the synchronization loop.
package model

import "time"

// DateLayout is the calendar-date format used for event dates and record
// dates, both in the local store and on the wire.
const DateLayout = "2006-01-02"

// User is a denormalized roster row cached locally so the device can render
// student information offline without joins. Identified by the immutable
// external id_number; created on first roster sync and updated in place on
// later syncs.
type User struct {
	IDNumber       string `json:"id_number"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role"`
	BlockID        int64  `json:"block_id"`
	BlockName      string `json:"block_name"`
	DepartmentID   int64  `json:"department_id"`
	DepartmentName string `json:"department_name"`
	CourseID       int64  `json:"course_id"`
	CourseName     string `json:"course_name"`
	YearLevel      string `json:"year_level"`
}

// Event is a locally cached event. The four clock-time fields are the day's
// expected check-in/out schedule slots ("07:30"); any of them may be unset.
type Event struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Venue       string      `json:"venue"`
	Description string      `json:"description"`
	Status      string      `json:"status"` // pending, Approved, Archived, ...
	CreatedBy   string      `json:"created_by"`
	ApprovedBy  *string     `json:"approved_by,omitempty"`
	AmIn        *string     `json:"am_in,omitempty"`
	AmOut       *string     `json:"am_out,omitempty"`
	PmIn        *string     `json:"pm_in,omitempty"`
	PmOut       *string     `json:"pm_out,omitempty"`
	Duration    int64       `json:"duration"`
	Dates       []EventDate `json:"dates,omitempty"`
}

// EventDate is one calendar date of an event. Cascade-deleted with its event.
type EventDate struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Date    string `json:"event_date"` // DateLayout
}

// Attendance is a buffered scan row: which schedule slots a student satisfied
// on one event date, and when each slot was first satisfied.
//
// Flags are tri-state on read: true/false for a stored 1/0, nil when the
// column holds anything else. The sync payload omits nil flags because the
// remote side distinguishes "explicitly false" from "not reported".
type Attendance struct {
	ID              int64
	EventDateID     int64
	StudentIDNumber string
	AmIn            *bool
	AmOut           *bool
	PmIn            *bool
	PmOut           *bool
	AmInTime        *time.Time
	AmOutTime       *time.Time
	PmInTime        *time.Time
	PmOutTime       *time.Time
}

// Satisfied reports whether the given flag is stored and set.
func Satisfied(flag *bool) bool {
	return flag != nil && *flag
}

// SlotFlags names the schedule slots satisfied by a single scan. The buffer
// writer only ever turns flags on; previously satisfied slots are untouched.
type SlotFlags struct {
	AmIn  bool
	AmOut bool
	PmIn  bool
	PmOut bool
}

// Record is a flattened projection used purely as the disposable report
// buffer. It carries the event date as a plain date string, not a foreign
// key: the table is rebuilt from scratch on every bulk save.
type Record struct {
	ID              int64  `json:"id"`
	EventID         int64  `json:"event_id"`
	EventName       string `json:"event_name"`
	EventDate       string `json:"event_date"` // DateLayout
	StudentIDNumber string `json:"student_id_number"`
	AmIn            bool   `json:"am_in"`
	AmOut           bool   `json:"am_out"`
	PmIn            bool   `json:"pm_in"`
	PmOut           bool   `json:"pm_out"`
}
