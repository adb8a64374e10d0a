// Package syncd runs the background loop that reconciles the local
// attendance buffer with the remote service.
//
// The loop is unattended by design: tick failures are logged and swallowed,
// and the buffered rows simply wait for the next interval. The only visible
// symptom of a stuck sync is stale remote data, which resolves on a later
// successful tick.
package syncd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campuspass/eventlog/internal/api"
	"github.com/campuspass/eventlog/internal/model"
	"github.com/campuspass/eventlog/internal/normalize"
	"github.com/campuspass/eventlog/internal/store"
)

// DefaultInterval is the tick interval when none is configured.
const DefaultInterval = 30 * time.Second

// Remote is the slice of the API client the loop needs. Narrow on purpose so
// tests can substitute a fake.
type Remote interface {
	SyncAttendance(ctx context.Context, batch []normalize.WireAttendance) (*api.SyncResult, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Config holds loop configuration.
type Config struct {
	// Interval between ticks. Fixed, no backoff.
	Interval time.Duration

	// Logger for loop activity.
	Logger *log.Logger
}

// Service owns the sync timer and drives the per-tick reconciliation. One
// Service is constructed at process start; Start while running is a no-op,
// so at most one timer is ever armed.
type Service struct {
	store    store.Store
	remote   Remote
	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// ticking guards against overlapping ticks independent of timer
	// semantics: a tick that outlives the interval makes the next one skip.
	ticking atomic.Bool
}

// New creates a Service over the given store and remote client.
func New(st store.Store, remote Remote, cfg *Config) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[syncd] ", log.LstdFlags)
	}
	return &Service{
		store:    st,
		remote:   remote,
		interval: interval,
		logger:   logger,
	}
}

// Start arms the interval timer. Calling Start while the loop is already
// running does nothing.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Printf("sync loop started (interval %s)", s.interval)
}

// Stop disarms the timer and waits for the loop goroutine. An in-flight tick
// is not interrupted, only future ticks are prevented. A later Start re-arms.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Printf("sync loop stopped")
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(context.Background()); err != nil {
				// Best effort: log and wait for the next interval.
				s.logger.Printf("sync tick failed: %v", err)
			}
		}
	}
}

// Tick runs one reconciliation pass. Exported so the CLI can run a one-shot
// sync with the same semantics as the background loop. Returns nil without
// doing anything if a previous tick is still in progress.
func (s *Service) Tick(ctx context.Context) error {
	if !s.ticking.CompareAndSwap(false, true) {
		s.logger.Printf("previous tick still in progress, skipping")
		return nil
	}
	defer s.ticking.Store(false)
	return s.tick(ctx)
}

func (s *Service) tick(ctx context.Context) error {
	rows, err := s.store.ListAttendance(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrUnsupported) {
			// Local persistence is off this session; nothing to reconcile.
			return nil
		}
		return fmt.Errorf("failed to read attendance buffer: %w", err)
	}
	if len(rows) == 0 {
		s.logger.Printf("attendance buffer empty, nothing to sync")
		return nil
	}

	events, err := s.store.CachedEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached events: %w", err)
	}
	shouldClear := allConcluded(events, time.Now())

	result, err := s.remote.SyncAttendance(ctx, normalize.WirePayload(rows))
	if err != nil {
		// Buffer untouched: the rows retry on the next tick.
		return fmt.Errorf("sync of %d attendance rows failed: %w", len(rows), err)
	}
	s.logger.Printf("synced %d attendance rows (failed %d)", result.SyncedCount, result.FailedCount)
	for _, fr := range result.FailedRecords {
		s.logger.Printf("server rejected row event_date=%d student=%s: %s",
			fr.EventDateID, fr.StudentIDNumber, fr.Reason)
	}

	if shouldClear {
		// Purge is gated on the event calendar alone; per-row failures
		// reported by the server do not block it.
		if err := s.store.PurgeAttendance(ctx); err != nil {
			return fmt.Errorf("failed to purge attendance buffer: %w", err)
		}
		s.logger.Printf("purged attendance buffer: all cached events have concluded")
	}
	return nil
}

// RefreshEventCache replaces the local event cache with the remote listing.
// The cache feeds the purge guard, so the daemon refreshes it at startup.
func (s *Service) RefreshEventCache(ctx context.Context) error {
	events, err := s.remote.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list remote events: %w", err)
	}
	if err := s.store.ReplaceEventCache(ctx, events); err != nil {
		return fmt.Errorf("failed to replace event cache: %w", err)
	}
	s.logger.Printf("event cache refreshed (%d events)", len(events))
	return nil
}

// allConcluded reports whether every date of every cached event is strictly
// before today. Only then is it safe to drop local attendance: no event
// could still need local recording. An unparseable date counts as not
// concluded; an empty cache is vacuously concluded.
func allConcluded(events []model.Event, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, ev := range events {
		for _, d := range ev.Dates {
			day, err := time.ParseInLocation(model.DateLayout, d.Date, now.Location())
			if err != nil {
				return false
			}
			if !day.Before(today) {
				return false
			}
		}
	}
	return true
}
