package normalize

import (
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/campuspass/eventlog/internal/model"
)

func testNormalizer() *Normalizer {
	return New(log.New(io.Discard, "", 0))
}

func int64Ptr(v int64) *int64 { return &v }

func TestFlatten_SingleGroup(t *testing.T) {
	groups := []RecordGroup{
		{
			EventID:   int64Ptr(9),
			EventName: "Seminar",
			Attendance: []map[string]map[string]any{
				{"2024-05-01": {"am_in": true, "am_out": false}},
			},
		},
	}

	rows := testNormalizer().Flatten(groups)
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(rows))
	}

	want := model.Record{
		EventID: 9, EventName: "Seminar", EventDate: "2024-05-01",
		AmIn: true, AmOut: false, PmIn: false, PmOut: false,
	}
	if rows[0] != want {
		t.Errorf("row = %+v, want %+v", rows[0], want)
	}
}

func TestFlatten_SkipsMalformedGroups(t *testing.T) {
	groups := []RecordGroup{
		{EventName: "No ID", Attendance: []map[string]map[string]any{{"2024-05-01": {}}}},
		{EventID: int64Ptr(2), Attendance: []map[string]map[string]any{{"2024-05-01": {}}}},
		{EventID: int64Ptr(3), EventName: "No attendance"},
		{
			EventID:   int64Ptr(4),
			EventName: "Valid",
			Attendance: []map[string]map[string]any{
				{"2024-05-01": {"pm_in": true}},
			},
		},
	}

	rows := testNormalizer().Flatten(groups)
	if len(rows) != 1 {
		t.Fatalf("expected only the valid group to produce rows, got %d", len(rows))
	}
	if rows[0].EventID != 4 || !rows[0].PmIn {
		t.Errorf("row = %+v, want event 4 with pm_in set", rows[0])
	}
}

func TestFlatten_MultipleDatesSorted(t *testing.T) {
	groups := []RecordGroup{
		{
			EventID:   int64Ptr(7),
			EventName: "Intramurals",
			Attendance: []map[string]map[string]any{
				{
					"2024-05-02": {"am_in": true},
					"2024-05-01": {"am_in": true},
				},
			},
		},
	}

	rows := testNormalizer().Flatten(groups)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].EventDate != "2024-05-01" || rows[1].EventDate != "2024-05-02" {
		t.Errorf("dates = %s, %s, want ascending order", rows[0].EventDate, rows[1].EventDate)
	}
}

func TestFlatten_StudentID(t *testing.T) {
	groups := []RecordGroup{
		{
			EventID:   int64Ptr(9),
			EventName: "Seminar",
			Attendance: []map[string]map[string]any{
				{"2024-05-01": {"student_id_number": "2021001", "am_in": 1}},
			},
		},
	}

	rows := testNormalizer().Flatten(groups)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].StudentIDNumber != "2021001" {
		t.Errorf("student = %q, want 2021001", rows[0].StudentIDNumber)
	}
	if !rows[0].AmIn {
		t.Error("numeric 1 should coerce to true")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"float 1", float64(1), true},
		{"float 0", float64(0), false},
		{"int 1", 1, true},
		{"string true", "true", true},
		{"string 1", "1", true},
		{"string 0", "0", false},
		{"string false", "FALSE", false},
		{"empty string", "", false},
		{"nil", nil, false},
		{"object", map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := truthy(tc.in); got != tc.want {
				t.Errorf("truthy(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestWirePayload_OmitsUnknownFlags(t *testing.T) {
	yes, no := true, false
	rows := []model.Attendance{
		{EventDateID: 5, StudentIDNumber: "2021001", AmIn: &yes, AmOut: &no},
	}

	payload := WirePayload(rows)
	if len(payload) != 1 {
		t.Fatalf("expected 1 wire row, got %d", len(payload))
	}

	raw, err := json.Marshal(payload[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	body := string(raw)

	for _, want := range []string{`"event_date_id":5`, `"student_id_number":"2021001"`, `"am_in":true`, `"am_out":false`} {
		if !strings.Contains(body, want) {
			t.Errorf("payload %s missing %s", body, want)
		}
	}
	// Unknown flags must drop off the wire entirely, not become false.
	for _, absent := range []string{"pm_in", "pm_out"} {
		if strings.Contains(body, absent) {
			t.Errorf("payload %s should omit %s", body, absent)
		}
	}
}
