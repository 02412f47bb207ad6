package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
)

type QuotaManagerSuite struct {
	suite.Suite
	manager *Manager
	cfg     *models.IntakeConfiguration
	ctx     context.Context
}

func TestQuotaManagerSuite(t *testing.T) {
	suite.Run(t, new(QuotaManagerSuite))
}

func (s *QuotaManagerSuite) SetupTest() {
	var err error
	s.manager, err = New(NewInMemory())
	s.Require().NoError(err)
	s.ctx = context.Background()

	now := time.Now()
	s.cfg = &models.IntakeConfiguration{
		ID:                id.NewBatchID(),
		TenantID:          id.NewTenantID(),
		CycleYear:         2025,
		BatchLabel:        "Gelombang 1",
		BatchCode:         "GEL01",
		RegistrationStart: now.Add(-time.Hour),
		RegistrationEnd:   now.Add(time.Hour),
		Tracks:            []string{"IPA", "IPS"},
		Pathways: []models.PathwayRule{
			{Name: "zonasi"},
			{Name: "prestasi"},
			{Name: "transfer", BypassQuota: true},
		},
		Quotas: []models.QuotaRule{
			{Track: "IPA", Pathway: "zonasi", Limit: 3},
		},
		AdmissionPolicy: models.PolicyRankedQuota,
		Active:          true,
	}
}

// freshBatch clones the base configuration under a new batch id so
// subtests within one method never share counters.
func (s *QuotaManagerSuite) freshBatch() *models.IntakeConfiguration {
	cfg := s.cfg.Clone()
	cfg.ID = id.NewBatchID()
	return cfg
}

func (s *QuotaManagerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
	})
}

func (s *QuotaManagerSuite) TestReserve() {
	s.Run("quota of K admits exactly K", func() {
		cfg := s.freshBatch()
		for i := 0; i < 3; i++ {
			_, err := s.manager.Reserve(s.ctx, cfg, "IPA", "zonasi")
			s.Require().NoError(err, "reservation %d should fit", i+1)
		}

		_, err := s.manager.Reserve(s.ctx, cfg, "IPA", "zonasi")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
	})

	s.Run("other keys are unaffected by a full key", func() {
		cfg := s.freshBatch()
		for i := 0; i < 3; i++ {
			_, err := s.manager.Reserve(s.ctx, cfg, "IPA", "zonasi")
			s.Require().NoError(err)
		}
		_, err := s.manager.Reserve(s.ctx, cfg, "IPA", "zonasi")
		s.Require().Error(err)

		_, err = s.manager.Reserve(s.ctx, cfg, "IPS", "zonasi")
		s.NoError(err, "different track should still have capacity")
		_, err = s.manager.Reserve(s.ctx, cfg, "IPA", "prestasi")
		s.NoError(err, "different pathway should still have capacity")
	})

	s.Run("unconfigured key is bounded only by max applications", func() {
		cfg := s.freshBatch()
		for i := 0; i < 10; i++ {
			_, err := s.manager.Reserve(s.ctx, cfg, "IPS", "prestasi")
			s.Require().NoError(err)
		}
	})

	s.Run("bypass-quota pathway ignores the per-key limit", func() {
		bypass := s.freshBatch()
		bypass.Quotas = append(bypass.Quotas, models.QuotaRule{Track: "IPA", Pathway: "transfer", Limit: 1})
		for i := 0; i < 4; i++ {
			_, err := s.manager.Reserve(s.ctx, bypass, "IPA", "transfer")
			s.Require().NoError(err)
		}
	})

	s.Run("batch-wide max applications is enforced", func() {
		capped := s.freshBatch()
		capped.MaxApplications = 2

		_, err := s.manager.Reserve(s.ctx, capped, "IPS", "prestasi")
		s.Require().NoError(err)
		_, err = s.manager.Reserve(s.ctx, capped, "IPA", "prestasi")
		s.Require().NoError(err)

		_, err = s.manager.Reserve(s.ctx, capped, "IPS", "zonasi")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
	})

	s.Run("failed per-key reservation rolls back the batch counter", func() {
		capped := s.freshBatch()
		capped.MaxApplications = 10

		for i := 0; i < 3; i++ {
			_, err := s.manager.Reserve(s.ctx, capped, "IPA", "zonasi")
			s.Require().NoError(err)
		}
		_, err := s.manager.Reserve(s.ctx, capped, "IPA", "zonasi")
		s.Require().Error(err)

		n, err := s.manager.Reserved(s.ctx, capped.TenantID, capped.ID, "", "")
		s.Require().NoError(err)
		s.Equal(3, n, "batch counter should not count the rejected reservation")
	})
}

func (s *QuotaManagerSuite) TestRelease() {
	s.Run("release frees capacity for later submissions", func() {
		var last *Reservation
		for i := 0; i < 3; i++ {
			r, err := s.manager.Reserve(s.ctx, s.cfg, "IPA", "zonasi")
			s.Require().NoError(err)
			last = r
		}
		_, err := s.manager.Reserve(s.ctx, s.cfg, "IPA", "zonasi")
		s.Require().Error(err)

		s.Require().NoError(s.manager.Release(s.ctx, last))

		_, err = s.manager.Reserve(s.ctx, s.cfg, "IPA", "zonasi")
		s.NoError(err, "released slot should be reusable")
	})

	s.Run("nil reservation is a no-op", func() {
		s.NoError(s.manager.Release(s.ctx, nil))
	})
}

func (s *QuotaManagerSuite) TestSeedFromApplications() {
	apps := []*models.Application{
		{Track: "IPA", Pathway: "zonasi", Status: models.StatusRegistered},
		{Track: "IPA", Pathway: "zonasi", Status: models.StatusAnnounced},
		{Track: "IPA", Pathway: "zonasi", Status: models.StatusCancelled}, // no capacity
		{Track: "IPS", Pathway: "zonasi", Status: models.StatusRegistered},
	}
	s.Require().NoError(s.manager.SeedFromApplications(s.ctx, s.cfg, apps))

	n, err := s.manager.Reserved(s.ctx, s.cfg.TenantID, s.cfg.ID, "IPA", "zonasi")
	s.Require().NoError(err)
	s.Equal(2, n)

	// Quota 3 with 2 seeded: one slot left.
	_, err = s.manager.Reserve(s.ctx, s.cfg, "IPA", "zonasi")
	s.Require().NoError(err)
	_, err = s.manager.Reserve(s.ctx, s.cfg, "IPA", "zonasi")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
}

// TestReserve_Concurrent races many reservations at one key: the number of
// successes must equal the limit exactly.
func TestReserve_Concurrent(t *testing.T) {
	manager, err := New(NewInMemory())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	const limit = 50
	cfg := &models.IntakeConfiguration{
		ID:        id.NewBatchID(),
		TenantID:  id.NewTenantID(),
		CycleYear: 2025,
		Pathways:  []models.PathwayRule{{Name: "zonasi"}},
		Quotas:    []models.QuotaRule{{Track: "IPA", Pathway: "zonasi", Limit: limit}},
	}

	const attempts = 300
	var successes, rejections atomic.Int64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := manager.Reserve(ctx, cfg, "IPA", "zonasi")
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeQuotaExceeded):
				rejections.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != limit {
		t.Fatalf("expected exactly %d successful reservations, got %d", limit, got)
	}
	if got := rejections.Load(); got != attempts-limit {
		t.Fatalf("expected %d rejections, got %d", attempts-limit, got)
	}
}
