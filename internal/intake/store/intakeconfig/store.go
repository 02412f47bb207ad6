// Package intakeconfig persists batch configurations ("gelombang").
package intakeconfig

import (
	"context"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
)

// Store is the configuration repository. Lookups return
// sentinel.ErrNotFound; Create returns sentinel.ErrConflict when the id
// already exists.
type Store interface {
	Create(ctx context.Context, cfg *models.IntakeConfiguration) error
	Update(ctx context.Context, cfg *models.IntakeConfiguration) error
	FindByID(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.IntakeConfiguration, error)
}
