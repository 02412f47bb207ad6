// Package sequence owns the per-(tenant, cycle, batch) registration
// sequence counters. No other component may write this state.
//
// The source system read the current max suffix, incremented in application
// code, and retried on unique-constraint violations. Two readers can
// observe the same max before either writes, so that pattern is replaced
// here by atomic read-modify-write in every store: a mutexed map in
// memory, INCR in Redis, and INSERT .. ON CONFLICT .. RETURNING in
// Postgres. Two concurrent callers can never observe the same next value.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
)

// Key addresses one logical counter.
type Key struct {
	TenantID  id.TenantID
	CycleYear int
	BatchCode string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.TenantID, k.CycleYear, k.BatchCode)
}

// Store is the durable counter. Next must be atomic: strictly increasing
// per key, starting at 1, no duplicates under concurrent callers.
type Store interface {
	Next(ctx context.Context, key Key) (int, error)
	// Seed raises the counter to at least max. It never lowers it.
	Seed(ctx context.Context, key Key, max int) error
}

// Allocator wraps a Store with seeding and the collision-resistant
// last-resort sequence used when persistence keeps rejecting candidates.
type Allocator struct {
	store  Store
	logger *slog.Logger
	// now is swappable for tests of the clock fallback.
	now func() time.Time
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger attaches a logger for allocator diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

// WithClock overrides the fallback clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// New constructs an Allocator.
func New(store Store, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, fmt.Errorf("sequence store is required")
	}
	a := &Allocator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Next allocates the next sequence number for the key.
func (a *Allocator) Next(ctx context.Context, key Key) (int, error) {
	v, err := a.store.Next(ctx, key)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "sequence allocation failed")
	}
	return v, nil
}

// InitializeFrom seeds the counter from the highest sequence already
// embedded in persisted identifiers. Used when bootstrapping a batch from
// ad-hoc data or recovering after a counter reset.
func (a *Allocator) InitializeFrom(ctx context.Context, key Key, existingMax int) error {
	if existingMax < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "existing max must not be negative")
	}
	if err := a.store.Seed(ctx, key, existingMax); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "sequence seed failed")
	}
	if a.logger != nil {
		a.logger.InfoContext(ctx, "sequence counter seeded",
			"key", key.String(),
			"existing_max", existingMax,
		)
	}
	return nil
}

// clockSequenceFloor keeps synthesized sequences far above any counter
// value and free of leading zeros in the widened field.
const clockSequenceFloor = 100_000_000_000

// ClockSequence synthesizes a collision-resistant sequence from the
// high-resolution clock. It is the last resort after the persistence
// retry budget is exhausted: submissions are never rejected solely due
// to id contention. Reaching this path indicates an allocator
// correctness failure and is logged at error severity by the caller.
func (a *Allocator) ClockSequence() int {
	return int(a.now().UnixNano()%(9*clockSequenceFloor)) + clockSequenceFloor
}
