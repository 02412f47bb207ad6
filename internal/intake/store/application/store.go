// Package application persists the application aggregate. Mutations go
// through Execute so invariant checks and writes happen under one lock (or
// one row lock), never on a stale read.
package application

import (
	"context"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
)

// Store is the application repository. Lookups return
// sentinel.ErrNotFound; Create returns sentinel.ErrConflict when the
// tenant already has an application with the same registration id.
type Store interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error)
	FindByRegistrationID(ctx context.Context, tenantID id.TenantID, regID string) (*models.Application, error)
	ListByBatch(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error)

	// Execute loads the aggregate, runs mutate on it, and persists the
	// result with the version bumped. When mutate returns an error nothing
	// is written and the error is returned unchanged.
	Execute(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID,
		mutate func(app *models.Application) error) (*models.Application, error)

	// MaxSequence returns the highest allocated sequence in the batch, 0
	// when none exist. Used to re-seed the sequence counter after an
	// identifier conflict.
	MaxSequence(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (int, error)
}
