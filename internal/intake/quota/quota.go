// Package quota enforces configured capacity per (track, pathway) pair and
// per batch. Reservation is check-and-increment under one lock (or one SQL
// statement), so concurrent submissions can never over-admit.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
)

// ResKey addresses one reserved-capacity counter. Batch-wide counters use
// empty Track and Pathway.
type ResKey struct {
	TenantID id.TenantID
	BatchID  id.BatchID
	Track    string
	Pathway  string
}

func (k ResKey) String() string {
	if k.Track == "" && k.Pathway == "" {
		return fmt.Sprintf("%s:%s:batch", k.TenantID, k.BatchID)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.TenantID, k.BatchID, k.Track, k.Pathway)
}

// Store is the durable reserved-capacity counter.
type Store interface {
	// Increment atomically raises the counter if it is below limit.
	// limit <= 0 means unbounded. Returns false when the key is full.
	Increment(ctx context.Context, key ResKey, limit int) (bool, error)
	// Decrement lowers the counter, never below zero.
	Decrement(ctx context.Context, key ResKey) error
	// Count returns the current reserved count.
	Count(ctx context.Context, key ResKey) (int, error)
	// Seed raises the counter to at least count (bootstrap from persisted
	// applications).
	Seed(ctx context.Context, key ResKey, count int) error
}

// Reservation is claimed capacity, held until the application leaves the
// counting set (cancelled or rejected) or the submission fails.
type Reservation struct {
	TenantID id.TenantID
	BatchID  id.BatchID
	Track    string
	Pathway  string
}

// Manager resolves configuration into reservations.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	m := &Manager{store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Reserve claims one slot for (track, pathway) in the batch. It checks the
// batch-wide MaxApplications first, then the per-key quota. Pathways with
// BypassQuota skip the per-key limit but still count, so Release stays
// symmetric and reporting stays accurate.
func (m *Manager) Reserve(ctx context.Context, cfg *models.IntakeConfiguration, track, pathway string) (*Reservation, error) {
	if cfg == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "configuration is required")
	}

	batchKey := ResKey{TenantID: cfg.TenantID, BatchID: cfg.ID}
	ok, err := m.store.Increment(ctx, batchKey, cfg.MaxApplications)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve batch capacity")
	}
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeQuotaExceeded,
			"batch %s has reached its maximum of %d applications", cfg.BatchLabel, cfg.MaxApplications)
	}

	limit := 0
	if l, configured := cfg.QuotaFor(track, pathway); configured {
		limit = l
	}
	if rule, ok := cfg.PathwayRule(pathway); ok && rule.BypassQuota {
		limit = 0
	}

	pairKey := ResKey{TenantID: cfg.TenantID, BatchID: cfg.ID, Track: track, Pathway: pathway}
	ok, err = m.store.Increment(ctx, pairKey, limit)
	if err != nil {
		m.rollback(ctx, batchKey)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve track/pathway capacity")
	}
	if !ok {
		m.rollback(ctx, batchKey)
		return nil, dErrors.Newf(dErrors.CodeQuotaExceeded,
			"quota reached for track %s, pathway %s (limit %d)", track, pathway, limit)
	}

	return &Reservation{TenantID: cfg.TenantID, BatchID: cfg.ID, Track: track, Pathway: pathway}, nil
}

// Release frees a reservation when the application stops counting against
// capacity (cancelled, rejected, or submission failed after reserving).
func (m *Manager) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	pairKey := ResKey{TenantID: r.TenantID, BatchID: r.BatchID, Track: r.Track, Pathway: r.Pathway}
	if err := m.store.Decrement(ctx, pairKey); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release track/pathway capacity")
	}
	batchKey := ResKey{TenantID: r.TenantID, BatchID: r.BatchID}
	if err := m.store.Decrement(ctx, batchKey); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release batch capacity")
	}
	return nil
}

// Reserved returns the current count for (track, pathway) in the batch.
func (m *Manager) Reserved(ctx context.Context, tenantID id.TenantID, batchID id.BatchID, track, pathway string) (int, error) {
	n, err := m.store.Count(ctx, ResKey{TenantID: tenantID, BatchID: batchID, Track: track, Pathway: pathway})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read reserved count")
	}
	return n, nil
}

// SeedFromApplications initializes counters from the persisted set of
// capacity-holding applications, for bootstrap or recovery.
func (m *Manager) SeedFromApplications(ctx context.Context, cfg *models.IntakeConfiguration, apps []*models.Application) error {
	if cfg == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "configuration is required")
	}
	total := 0
	pairs := make(map[ResKey]int)
	for _, app := range apps {
		if !app.HoldsCapacity() {
			continue
		}
		total++
		key := ResKey{TenantID: cfg.TenantID, BatchID: cfg.ID, Track: app.Track, Pathway: app.Pathway}
		pairs[key]++
	}
	if err := m.store.Seed(ctx, ResKey{TenantID: cfg.TenantID, BatchID: cfg.ID}, total); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed batch counter")
	}
	for key, n := range pairs {
		if err := m.store.Seed(ctx, key, n); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed quota counter")
		}
	}
	return nil
}

func (m *Manager) rollback(ctx context.Context, key ResKey) {
	if err := m.store.Decrement(ctx, key); err != nil && m.logger != nil {
		m.logger.ErrorContext(ctx, "failed to roll back reservation",
			"key", key.String(),
			"error", err,
		)
	}
}
