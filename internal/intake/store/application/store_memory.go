package application

import (
	"context"
	"sync"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	"ppdb/pkg/platform/sentinel"
)

type regKey struct {
	tenantID id.TenantID
	regID    string
}

// InMemoryStore keeps aggregates under one mutex. Reads hand out deep
// copies; Execute mutates a copy and swaps it in only on success.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[id.ApplicationID]*models.Application
	byReg map[regKey]id.ApplicationID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[id.ApplicationID]*models.Application),
		byReg: make(map[regKey]id.ApplicationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[app.ID]; exists {
		return sentinel.ErrConflict
	}
	key := regKey{tenantID: app.TenantID, regID: app.RegistrationID}
	if _, exists := s.byReg[key]; exists {
		return sentinel.ErrConflict
	}

	s.byID[app.ID] = app.Clone()
	s.byReg[key] = app.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.byID[appID]
	if !ok || app.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *InMemoryStore) FindByRegistrationID(_ context.Context, tenantID id.TenantID, regID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appID, ok := s.byReg[regKey{tenantID: tenantID, regID: regID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[appID].Clone(), nil
}

func (s *InMemoryStore) ListByBatch(_ context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var apps []*models.Application
	for _, app := range s.byID {
		if app.TenantID == tenantID && app.BatchID == batchID {
			apps = append(apps, app.Clone())
		}
	}
	return apps, nil
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, appID id.ApplicationID,
	mutate func(app *models.Application) error) (*models.Application, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[appID]
	if !ok || current.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	s.byID[appID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) MaxSequence(_ context.Context, tenantID id.TenantID, batchID id.BatchID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, app := range s.byID {
		if app.TenantID != tenantID || app.BatchID != batchID {
			continue
		}
		if app.Sequence > max {
			max = app.Sequence
		}
	}
	return max, nil
}
