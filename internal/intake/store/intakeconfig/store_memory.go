package intakeconfig

import (
	"context"
	"sort"
	"sync"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	"ppdb/pkg/platform/sentinel"
)

// batchIdentity mirrors the (tenant_id, cycle_year, batch_code) unique
// constraint of the Postgres store.
type batchIdentity struct {
	tenantID  id.TenantID
	cycleYear int
	batchCode string
}

func identityOf(cfg *models.IntakeConfiguration) batchIdentity {
	return batchIdentity{tenantID: cfg.TenantID, cycleYear: cfg.CycleYear, batchCode: cfg.BatchCode}
}

// InMemoryStore keeps configurations under one mutex and hands out deep
// copies.
type InMemoryStore struct {
	mu         sync.RWMutex
	configs    map[id.BatchID]*models.IntakeConfiguration
	identities map[batchIdentity]id.BatchID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		configs:    make(map[id.BatchID]*models.IntakeConfiguration),
		identities: make(map[batchIdentity]id.BatchID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, cfg *models.IntakeConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[cfg.ID]; exists {
		return sentinel.ErrConflict
	}
	identity := identityOf(cfg)
	if _, taken := s.identities[identity]; taken {
		return sentinel.ErrConflict
	}
	s.configs[cfg.ID] = cfg.Clone()
	s.identities[identity] = cfg.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, cfg *models.IntakeConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.configs[cfg.ID]
	if !exists || current.TenantID != cfg.TenantID {
		return sentinel.ErrNotFound
	}
	identity := identityOf(cfg)
	if owner, taken := s.identities[identity]; taken && owner != cfg.ID {
		return sentinel.ErrConflict
	}
	delete(s.identities, identityOf(current))
	s.identities[identity] = cfg.ID
	s.configs[cfg.ID] = cfg.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[batchID]
	if !ok || cfg.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.IntakeConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configs []*models.IntakeConfiguration
	for _, cfg := range s.configs {
		if cfg.TenantID == tenantID {
			configs = append(configs, cfg.Clone())
		}
	}
	sort.Slice(configs, func(i, j int) bool {
		if !configs[i].RegistrationStart.Equal(configs[j].RegistrationStart) {
			return configs[i].RegistrationStart.Before(configs[j].RegistrationStart)
		}
		return configs[i].BatchCode < configs[j].BatchCode
	})
	return configs, nil
}
