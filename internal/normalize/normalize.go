// Package normalize translates between the nested per-event/per-date shape
// used by bulk record callers, the flat row shape stored in the records
// table, and the wire shape expected by the remote reconciliation endpoint.
package normalize

import (
	"log"
	"os"
	"sort"
	"strings"

	"github.com/campuspass/eventlog/internal/model"
)

// RecordGroup is one inbound event group: an event identity plus a list of
// attendance maps keyed by calendar date. Decoded straight from JSON, so
// flag values arrive loosely typed and get coerced here.
type RecordGroup struct {
	EventID    *int64                      `json:"event_id"`
	EventName  string                      `json:"event_name"`
	Attendance []map[string]map[string]any `json:"attendance"`
}

// WireAttendance is one attendance row in the sync request body. Flag fields
// are present only when the stored value is a definite 0 or 1; the remote
// side distinguishes "explicitly false" from "not reported", so unknown
// states must not be coerced to false.
type WireAttendance struct {
	EventDateID     int64  `json:"event_date_id"`
	StudentIDNumber string `json:"student_id_number"`
	AmIn            *bool  `json:"am_in,omitempty"`
	AmOut           *bool  `json:"am_out,omitempty"`
	PmIn            *bool  `json:"pm_in,omitempty"`
	PmOut           *bool  `json:"pm_out,omitempty"`
}

// Normalizer reshapes inbound record groups. Malformed groups are logged and
// skipped, never fatal to the batch.
type Normalizer struct {
	logger *log.Logger
}

// New creates a Normalizer. If logger is nil, a default logger writing to
// stderr is used.
func New(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.New(os.Stderr, "[normalize] ", log.LstdFlags)
	}
	return &Normalizer{logger: logger}
}

// Flatten turns event groups into flat record rows, one per
// (event, date, student) tuple. Groups missing an event id, an event name or
// a well-formed attendance array are skipped. Each of the four flags is
// coerced to a strict boolean.
func (n *Normalizer) Flatten(groups []RecordGroup) []model.Record {
	var out []model.Record
	for i, g := range groups {
		if g.EventID == nil || g.EventName == "" || g.Attendance == nil {
			n.logger.Printf("skipping malformed record group at index %d", i)
			continue
		}
		for _, entry := range g.Attendance {
			dates := make([]string, 0, len(entry))
			for date := range entry {
				dates = append(dates, date)
			}
			sort.Strings(dates)
			for _, date := range dates {
				flags := entry[date]
				out = append(out, model.Record{
					EventID:         *g.EventID,
					EventName:       g.EventName,
					EventDate:       date,
					StudentIDNumber: studentID(flags),
					AmIn:            truthy(flags["am_in"]),
					AmOut:           truthy(flags["am_out"]),
					PmIn:            truthy(flags["pm_in"]),
					PmOut:           truthy(flags["pm_out"]),
				})
			}
		}
	}
	return out
}

// WirePayload shapes buffered attendance rows for the reconciliation
// endpoint. Ids are copied verbatim; flags keep their tri-state form so
// unknown values drop off the wire entirely.
func WirePayload(rows []model.Attendance) []WireAttendance {
	out := make([]WireAttendance, 0, len(rows))
	for _, a := range rows {
		out = append(out, WireAttendance{
			EventDateID:     a.EventDateID,
			StudentIDNumber: a.StudentIDNumber,
			AmIn:            a.AmIn,
			AmOut:           a.AmOut,
			PmIn:            a.PmIn,
			PmOut:           a.PmOut,
		})
	}
	return out
}

// studentID pulls the optional student id out of a per-date flags object.
func studentID(flags map[string]any) string {
	if s, ok := flags["student_id_number"].(string); ok {
		return s
	}
	return ""
}

// truthy coerces a loosely typed flag value to a strict boolean. Booleans
// and numbers keep their obvious meaning; strings count as set unless they
// spell an explicit zero or false; everything else is false.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "", "0", "false":
			return false
		}
		return true
	default:
		return false
	}
}
