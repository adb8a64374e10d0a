package syncd

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/campuspass/eventlog/internal/api"
	"github.com/campuspass/eventlog/internal/model"
	"github.com/campuspass/eventlog/internal/normalize"
	"github.com/campuspass/eventlog/internal/store"
)

// fakeRemote implements Remote with canned responses.
type fakeRemote struct {
	result  *api.SyncResult
	syncErr error
	batches [][]normalize.WireAttendance

	events  []model.Event
	listErr error
}

func (f *fakeRemote) SyncAttendance(_ context.Context, batch []normalize.WireAttendance) (*api.SyncResult, error) {
	f.batches = append(f.batches, batch)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &api.SyncResult{SyncedCount: len(batch)}, nil
}

func (f *fakeRemote) ListEvents(context.Context) ([]model.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func newTestService(t *testing.T, remote Remote) (*Service, *store.Manager) {
	t.Helper()
	m := store.NewManager(filepath.Join(t.TempDir(), "eventlog.db"), log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = m.Close() })
	svc := New(m, remote, &Config{Logger: log.New(io.Discard, "", 0)})
	return svc, m
}

// seedBuffer caches one event on the given date and buffers one am_in scan
// for its date, returning the event date id.
func seedBuffer(t *testing.T, m *store.Manager, date string) int64 {
	t.Helper()
	ctx := context.Background()
	err := m.ReplaceEventCache(ctx, []model.Event{
		{Name: "Seminar", Dates: []model.EventDate{{Date: date}}},
	})
	if err != nil {
		t.Fatalf("ReplaceEventCache() failed: %v", err)
	}
	events, err := m.CachedEvents(ctx)
	if err != nil {
		t.Fatalf("CachedEvents() failed: %v", err)
	}
	dateID := events[0].Dates[0].ID
	if err := m.UpsertAttendance(ctx, dateID, "2021001", model.SlotFlags{AmIn: true}); err != nil {
		t.Fatalf("UpsertAttendance() failed: %v", err)
	}
	return dateID
}

func yesterday() string {
	return time.Now().AddDate(0, 0, -1).Format(model.DateLayout)
}

func today() string {
	return time.Now().Format(model.DateLayout)
}

func TestTick_PurgesWhenAllEventsConcluded(t *testing.T) {
	remote := &fakeRemote{result: &api.SyncResult{SyncedCount: 1}}
	svc, m := newTestService(t, remote)
	seedBuffer(t, m, yesterday())

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}

	if len(remote.batches) != 1 || len(remote.batches[0]) != 1 {
		t.Fatalf("expected one batch with one row, got %v", remote.batches)
	}
	row := remote.batches[0][0]
	if row.StudentIDNumber != "2021001" {
		t.Errorf("wire row student = %q, want 2021001", row.StudentIDNumber)
	}
	if row.AmIn == nil || !*row.AmIn {
		t.Error("wire row should carry am_in=true")
	}

	rows, err := m.ListAttendance(context.Background())
	if err != nil {
		t.Fatalf("ListAttendance() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected buffer purged after successful sync of concluded events, got %d rows", len(rows))
	}
}

func TestTick_KeepsBufferWhileEventsUpcoming(t *testing.T) {
	remote := &fakeRemote{result: &api.SyncResult{SyncedCount: 1}}
	svc, m := newTestService(t, remote)
	dateID := seedBuffer(t, m, today())

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}

	rows, err := m.ListAttendance(context.Background())
	if err != nil {
		t.Fatalf("ListAttendance() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected buffer untouched while an event is today-or-future, got %d rows", len(rows))
	}
	if rows[0].EventDateID != dateID || rows[0].StudentIDNumber != "2021001" {
		t.Errorf("row = %+v, want (%d, 2021001)", rows[0], dateID)
	}
	if !model.Satisfied(rows[0].AmIn) {
		t.Error("am_in should still be satisfied")
	}
}

func TestTick_RemoteFailurePreservesBuffer(t *testing.T) {
	remote := &fakeRemote{syncErr: errors.New("maintenance window")}
	svc, m := newTestService(t, remote)
	seedBuffer(t, m, yesterday())

	err := svc.Tick(context.Background())
	if err == nil {
		t.Fatal("Tick() should fail when the remote reports failure")
	}

	// Purge gate was true, but failure means the rows stay for retry.
	rows, listErr := m.ListAttendance(context.Background())
	if listErr != nil {
		t.Fatalf("ListAttendance() failed: %v", listErr)
	}
	if len(rows) != 1 {
		t.Errorf("expected buffer preserved after failed sync, got %d rows", len(rows))
	}
}

func TestTick_PurgeIgnoresPerRowFailures(t *testing.T) {
	// The purge gate is the event calendar, not the server's per-row counts:
	// a reported row failure does not keep the buffer alive.
	remote := &fakeRemote{result: &api.SyncResult{SyncedCount: 0, FailedCount: 1,
		FailedRecords: []api.FailedRecord{{EventDateID: 1, StudentIDNumber: "2021001", Reason: "unknown student"}}}}
	svc, m := newTestService(t, remote)
	seedBuffer(t, m, yesterday())

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}

	rows, err := m.ListAttendance(context.Background())
	if err != nil {
		t.Fatalf("ListAttendance() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected purge despite failed_count=1, got %d rows", len(rows))
	}
}

func TestTick_EmptyBufferSkipsRemote(t *testing.T) {
	remote := &fakeRemote{}
	svc, _ := newTestService(t, remote)

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if len(remote.batches) != 0 {
		t.Errorf("remote should not be called for an empty buffer, got %d calls", len(remote.batches))
	}
}

func TestTick_UnsupportedStoreIsSilent(t *testing.T) {
	remote := &fakeRemote{}
	svc := New(store.NewUnsupported(), remote, &Config{Logger: log.New(io.Discard, "", 0)})

	if err := svc.Tick(context.Background()); err != nil {
		t.Errorf("Tick() on unsupported store should be a silent no-op, got %v", err)
	}
	if len(remote.batches) != 0 {
		t.Error("remote should not be called without local persistence")
	}
}

func TestStartStop(t *testing.T) {
	remote := &fakeRemote{}
	svc, _ := newTestService(t, remote)
	svc.interval = 10 * time.Millisecond

	svc.Start()
	svc.Start() // second start is a no-op, only one timer armed
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
	svc.Stop() // idempotent

	// Re-arming after stop works.
	svc.Start()
	svc.Stop()
}

func TestTick_SkipsWhileInProgress(t *testing.T) {
	remote := &fakeRemote{}
	svc, m := newTestService(t, remote)
	seedBuffer(t, m, yesterday())

	svc.ticking.Store(true)
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if len(remote.batches) != 0 {
		t.Error("an overlapping tick should be skipped entirely")
	}
	svc.ticking.Store(false)
}

func TestRefreshEventCache(t *testing.T) {
	remote := &fakeRemote{events: []model.Event{
		{ID: 9, Name: "Seminar", Dates: []model.EventDate{{EventID: 9, Date: "2024-05-01"}}},
	}}
	svc, m := newTestService(t, remote)

	if err := svc.RefreshEventCache(context.Background()); err != nil {
		t.Fatalf("RefreshEventCache() failed: %v", err)
	}

	events, err := m.CachedEvents(context.Background())
	if err != nil {
		t.Fatalf("CachedEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Seminar" {
		t.Errorf("cached events = %+v, want the remote listing", events)
	}
}

func TestAllConcluded(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		events []model.Event
		want   bool
	}{
		{"empty cache", nil, true},
		{"all past", []model.Event{
			{Dates: []model.EventDate{{Date: "2024-05-08"}, {Date: "2024-05-09"}}},
		}, true},
		{"one today", []model.Event{
			{Dates: []model.EventDate{{Date: "2024-05-08"}, {Date: "2024-05-10"}}},
		}, false},
		{"one future", []model.Event{
			{Dates: []model.EventDate{{Date: "2024-05-08"}}},
			{Dates: []model.EventDate{{Date: "2024-06-01"}}},
		}, false},
		{"unparseable date", []model.Event{
			{Dates: []model.EventDate{{Date: "not-a-date"}}},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := allConcluded(tc.events, now); got != tc.want {
				t.Errorf("allConcluded() = %v, want %v", got, tc.want)
			}
		})
	}
}
