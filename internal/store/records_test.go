package store

import (
	"context"
	"testing"

	"github.com/campuspass/eventlog/internal/model"
)

func TestSaveRecords_ReplacesSnapshot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := []model.Record{
		{EventID: 9, EventName: "Seminar", EventDate: "2024-05-01", StudentIDNumber: "2021001", AmIn: true},
		{EventID: 9, EventName: "Seminar", EventDate: "2024-05-02", StudentIDNumber: "2021001", PmIn: true},
	}
	if err := m.SaveRecords(ctx, first); err != nil {
		t.Fatalf("SaveRecords() failed: %v", err)
	}

	// A bulk save is a replace, not a merge: an empty input clears the table.
	if err := m.SaveRecords(ctx, nil); err != nil {
		t.Fatalf("SaveRecords(empty) failed: %v", err)
	}
	rows, err := m.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 rows after empty save, got %d", len(rows))
	}
}

func TestSaveRecords_DuplicatesCollapse(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	r := model.Record{EventID: 9, EventName: "Seminar", EventDate: "2024-05-01", StudentIDNumber: "2021001", AmIn: true}
	if err := m.SaveRecords(ctx, []model.Record{r, r}); err != nil {
		t.Fatalf("SaveRecords() failed: %v", err)
	}

	rows, err := m.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected duplicate tuple to collapse to 1 row, got %d", len(rows))
	}
}

func TestListRecords_StrictBooleans(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	in := model.Record{
		EventID: 9, EventName: "Seminar", EventDate: "2024-05-01",
		StudentIDNumber: "2021001",
		AmIn:            true, AmOut: false, PmIn: false, PmOut: true,
	}
	if err := m.SaveRecords(ctx, []model.Record{in}); err != nil {
		t.Fatalf("SaveRecords() failed: %v", err)
	}

	rows, err := m.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	got := rows[0]
	if got.AmIn != true || got.AmOut != false || got.PmIn != false || got.PmOut != true {
		t.Errorf("flags = %v/%v/%v/%v, want true/false/false/true",
			got.AmIn, got.AmOut, got.PmIn, got.PmOut)
	}
	if got.EventID != 9 || got.EventName != "Seminar" || got.EventDate != "2024-05-01" {
		t.Errorf("row = %+v, want event 9 Seminar on 2024-05-01", got)
	}
}
