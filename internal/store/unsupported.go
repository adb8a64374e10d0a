package store

import (
	"context"

	"github.com/campuspass/eventlog/internal/model"
)

// Unsupported is the Store used on platforms without a filesystem-backed
// database (a pure web runtime, for example). Every operation reports
// ErrUnsupported instead of panicking; callers degrade to remote-only mode.
type Unsupported struct{}

var (
	_ Store = (*Manager)(nil)
	_ Store = Unsupported{}
)

// NewUnsupported returns the no-op Store.
func NewUnsupported() Store {
	return Unsupported{}
}

func (Unsupported) UpsertAttendance(context.Context, int64, string, model.SlotFlags) error {
	return ErrUnsupported
}

func (Unsupported) ListAttendance(context.Context) ([]model.Attendance, error) {
	return nil, ErrUnsupported
}

func (Unsupported) PurgeAttendance(context.Context) error { return ErrUnsupported }

func (Unsupported) SaveRecords(context.Context, []model.Record) error { return ErrUnsupported }

func (Unsupported) ListRecords(context.Context) ([]model.Record, error) {
	return nil, ErrUnsupported
}

func (Unsupported) UpsertUser(context.Context, model.User) error { return ErrUnsupported }

func (Unsupported) ReplaceEventCache(context.Context, []model.Event) error { return ErrUnsupported }

func (Unsupported) CachedEvents(context.Context) ([]model.Event, error) {
	return nil, ErrUnsupported
}

func (Unsupported) Counts(context.Context) (Counts, error) { return Counts{}, ErrUnsupported }

func (Unsupported) ClearAllData(context.Context) error { return ErrUnsupported }

func (Unsupported) DropAllTables(context.Context) error { return ErrUnsupported }

func (Unsupported) Close() error { return nil }
