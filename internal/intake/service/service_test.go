package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/quota"
	"ppdb/internal/intake/sequence"
	"ppdb/internal/intake/service"
	"ppdb/internal/intake/store/application"
	"ppdb/internal/intake/store/intakeconfig"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/requestcontext"
)

var baseTime = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// capturePublisher records emitted events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type IntakeServiceSuite struct {
	suite.Suite
	svc       *service.Service
	apps      *application.InMemoryStore
	configs   *intakeconfig.InMemoryStore
	quotas    *quota.Manager
	publisher *capturePublisher
	cfg       *models.IntakeConfiguration

	tenantID id.TenantID
}

func TestIntakeServiceSuite(t *testing.T) {
	suite.Run(t, new(IntakeServiceSuite))
}

func (s *IntakeServiceSuite) SetupTest() {
	s.apps = application.NewInMemory()
	s.configs = intakeconfig.NewInMemory()
	s.publisher = &capturePublisher{}
	s.tenantID = id.NewTenantID()

	allocator, err := sequence.New(sequence.NewInMemory())
	s.Require().NoError(err)
	s.quotas, err = quota.New(quota.NewInMemory())
	s.Require().NoError(err)

	s.svc, err = service.New(s.apps, s.configs, allocator, s.quotas,
		service.WithPublisher(s.publisher),
	)
	s.Require().NoError(err)

	s.cfg = s.createConfig(func(cfg *models.IntakeConfiguration) {})
}

// createConfig registers a batch through the service so the batch code is
// derived the same way production does it.
func (s *IntakeServiceSuite) createConfig(mutate func(cfg *models.IntakeConfiguration)) *models.IntakeConfiguration {
	cfg := &models.IntakeConfiguration{
		TenantID:            s.tenantID,
		CycleYear:           2025,
		BatchLabel:          "Gelombang 1",
		RegistrationStart:   baseTime.Add(-24 * time.Hour),
		RegistrationEnd:     baseTime.Add(24 * time.Hour),
		AnnouncementDate:    baseTime.Add(72 * time.Hour),
		ReRegistrationStart: baseTime.Add(96 * time.Hour),
		ReRegistrationEnd:   baseTime.Add(120 * time.Hour),
		Tracks:              []string{"IPA", "IPS"},
		Pathways: []models.PathwayRule{
			{Name: "zonasi"},
			{Name: "prestasi"},
			{Name: "transfer", BypassQuota: true, BypassScoring: true},
		},
		Quotas: []models.QuotaRule{
			{Track: "IPA", Pathway: "zonasi", Limit: 2},
		},
		AdmissionPolicy: models.PolicyRankedQuota,
		Active:          true,
	}
	mutate(cfg)

	created, err := s.svc.CreateConfiguration(s.openCtx(), cfg)
	s.Require().NoError(err)
	return created
}

// openCtx pins the clock inside the registration window.
func (s *IntakeServiceSuite) openCtx() context.Context {
	return requestcontext.WithTime(context.Background(), baseTime)
}

// closedCtx pins the clock after the registration window.
func (s *IntakeServiceSuite) closedCtx() context.Context {
	return requestcontext.WithTime(context.Background(), baseTime.Add(48*time.Hour))
}

func (s *IntakeServiceSuite) submitInput(track, pathway string) service.SubmitInput {
	return service.SubmitInput{
		TenantID: s.tenantID,
		BatchID:  s.cfg.ID,
		Candidate: models.Candidate{
			FullName: "Siti Rahma",
			NISN:     "0051234567",
		},
		Track:   track,
		Pathway: pathway,
	}
}

func (s *IntakeServiceSuite) TestSubmit() {
	s.Run("derives the canonical registration id", func() {
		app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().NoError(err)
		s.Equal("PPDB2025GEL010001", app.RegistrationID)
		s.Equal(models.StatusRegistered, app.Status)
		s.Require().NotNil(app.RegisteredAt)
		s.True(app.RegisteredAt.Equal(baseTime))

		registered := s.publisher.ofType(events.TypeRegistered)
		s.Require().Len(registered, 1)
		s.Equal(app.RegistrationID, registered[0].RegistrationID)
	})

	s.Run("closed window rejects with configuration closed", func() {
		_, err := s.svc.Submit(s.closedCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationClosed))
	})

	s.Run("inactive batch rejects with configuration closed", func() {
		_, err := s.svc.SetConfigurationActive(s.openCtx(), s.tenantID, s.cfg.ID, false)
		s.Require().NoError(err)
		defer func() {
			_, err := s.svc.SetConfigurationActive(s.openCtx(), s.tenantID, s.cfg.ID, true)
			s.Require().NoError(err)
		}()

		_, err = s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationClosed))
	})

	s.Run("unknown track and pathway are invalid input", func() {
		_, err := s.svc.Submit(s.openCtx(), s.submitInput("Bahasa", "zonasi"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.svc.Submit(s.openCtx(), s.submitInput("IPA", "undian"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *IntakeServiceSuite) TestSubmitQuota() {
	// Quota for (IPA, zonasi) is 2.
	for i := 0; i < 2; i++ {
		_, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().NoError(err)
	}

	_, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

	// The rejected submission must not have consumed an identifier: the
	// next admitted application gets the next contiguous sequence.
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPS", "zonasi"))
	s.Require().NoError(err)
	s.Equal(3, app.Sequence)
}

func (s *IntakeServiceSuite) TestSubmitSeedsCounterOnConflict() {
	// An application persisted outside the allocator (bootstrap import)
	// already holds sequence 1.
	imported, err := models.NewApplication(
		id.NewApplicationID(), s.tenantID, s.cfg.ID,
		"PPDB2025GEL010001", 1, 2025,
		models.Candidate{FullName: "Imported"}, "IPA", "prestasi", baseTime,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.apps.Create(s.openCtx(), imported))

	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)
	s.Equal(2, app.Sequence, "conflict re-seeds the counter from the stored maximum")
	s.Equal("PPDB2025GEL010002", app.RegistrationID)
}

func (s *IntakeServiceSuite) TestSubmitAutoApprove() {
	cfg := s.createConfig(func(cfg *models.IntakeConfiguration) {
		cfg.BatchLabel = "Gelombang 2"
		cfg.AutoApprove = true
	})

	input := s.submitInput("IPA", "transfer")
	input.BatchID = cfg.ID
	app, err := s.svc.Submit(s.openCtx(), input)
	s.Require().NoError(err)
	s.Equal(models.StatusAnnounced, app.Status)
	s.Require().NotNil(app.AnnouncedAt)
	s.Require().Len(s.publisher.ofType(events.TypeAnnounced), 1)

	// Non-bypass pathways are not auto-approved.
	input.Track, input.Pathway = "IPA", "zonasi"
	app, err = s.svc.Submit(s.openCtx(), input)
	s.Require().NoError(err)
	s.Equal(models.StatusRegistered, app.Status)
}

// TestEndToEndAdmission walks one candidate through the full pipeline.
func (s *IntakeServiceSuite) TestEndToEndAdmission() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)
	s.Equal("PPDB2025GEL010001", app.RegistrationID)

	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
	s.Require().NoError(err)

	for kind, value := range map[models.ScoreKind]float64{
		models.ScoreSelection: 85,
		models.ScoreInterview: 70,
		models.ScoreDocument:  90,
	} {
		_, err = s.svc.RecordScore(s.closedCtx(), s.tenantID, app.ID, kind, value)
		s.Require().NoError(err)
	}

	scored, err := s.svc.GetApplication(s.closedCtx(), s.tenantID, app.ID)
	s.Require().NoError(err)
	s.Require().NotNil(scored.TotalScore)
	s.Equal(81.67, *scored.TotalScore)

	announced, err := s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAnnounce, service.TransitionInput{})
	s.Require().NoError(err)
	s.Equal(models.StatusAnnounced, announced.Status)

	announcedEvents := s.publisher.ofType(events.TypeAnnounced)
	s.Require().Len(announcedEvents, 1)
	s.Require().NotNil(announcedEvents[0].TotalScore)
	s.Equal(81.67, *announcedEvents[0].TotalScore)

	accepted, err := s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAccept, service.TransitionInput{})
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)
	s.Require().Len(s.publisher.ofType(events.TypeAccepted), 1)

	// The accepted application still holds its quota slot.
	n, err := s.quotas.Reserved(s.closedCtx(), s.tenantID, s.cfg.ID, "IPA", "zonasi")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *IntakeServiceSuite) TestTransitionReleasesQuota() {
	s.Run("cancel frees the slot", func() {
		app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().NoError(err)

		_, err = s.svc.Transition(s.openCtx(), s.tenantID, app.ID, models.EventCancel, service.TransitionInput{})
		s.Require().NoError(err)
		s.Require().Len(s.publisher.ofType(events.TypeCancelled), 1)

		n, err := s.quotas.Reserved(s.openCtx(), s.tenantID, s.cfg.ID, "IPA", "zonasi")
		s.Require().NoError(err)
		s.Equal(0, n)
	})

	s.Run("reject frees the slot and records the reason", func() {
		app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().NoError(err)

		_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
		s.Require().NoError(err)
		_, err = s.svc.RecordScore(s.closedCtx(), s.tenantID, app.ID, models.ScoreSelection, 40)
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAnnounce, service.TransitionInput{})
		s.Require().NoError(err)

		rejected, err := s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventReject,
			service.TransitionInput{Reason: "below minimum score"})
		s.Require().NoError(err)
		s.Equal("below minimum score", rejected.RejectionReason)

		rejectedEvents := s.publisher.ofType(events.TypeRejected)
		s.Require().Len(rejectedEvents, 1)
		s.Equal("below minimum score", rejectedEvents[0].Reason)

		n, err := s.quotas.Reserved(s.closedCtx(), s.tenantID, s.cfg.ID, "IPA", "zonasi")
		s.Require().NoError(err)
		s.Equal(0, n)
	})

	s.Run("reject without a reason is rejected", func() {
		app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "prestasi"))
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
		s.Require().NoError(err)
		_, err = s.svc.RecordScore(s.closedCtx(), s.tenantID, app.ID, models.ScoreSelection, 40)
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAnnounce, service.TransitionInput{})
		s.Require().NoError(err)

		_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventReject, service.TransitionInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *IntakeServiceSuite) TestBeginSelectionRequiresClosedWindow() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)

	_, err = s.svc.Transition(s.openCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfigurationClosed))
}

func (s *IntakeServiceSuite) TestAnnounceRequiresScore() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
	s.Require().NoError(err)

	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAnnounce, service.TransitionInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMissingScore))
}

func (s *IntakeServiceSuite) TestRecordScoreOutsideSelection() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)

	_, err = s.svc.RecordScore(s.openCtx(), s.tenantID, app.ID, models.ScoreSelection, 80)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

// TestIllegalTransitionGrid fires every event from every state it is not
// allowed from and checks the persisted state never moves.
func (s *IntakeServiceSuite) TestIllegalTransitionGrid() {
	allStatuses := []models.Status{
		models.StatusPending, models.StatusRegistered, models.StatusSelection,
		models.StatusAnnounced, models.StatusAccepted, models.StatusRejected,
		models.StatusCancelled,
	}
	allEvents := []models.Event{
		models.EventRegister, models.EventBeginSelection, models.EventAnnounce,
		models.EventAccept, models.EventReject, models.EventCancel,
	}

	allowed := func(event models.Event, status models.Status) bool {
		for _, src := range models.AllowedSources(event) {
			if src == status {
				return true
			}
		}
		return false
	}

	seq := 100
	for _, status := range allStatuses {
		for _, event := range allEvents {
			if allowed(event, status) {
				continue
			}
			seq++
			name := fmt.Sprintf("%s from %s", event, status)
			s.Run(name, func() {
				app, err := models.NewApplication(
					id.NewApplicationID(), s.tenantID, s.cfg.ID,
					fmt.Sprintf("PPDB2025GEL01%04d", seq), seq, 2025,
					models.Candidate{FullName: "Grid"}, "IPA", "zonasi", baseTime,
				)
				s.Require().NoError(err)
				app.Status = status
				score := 75.0
				app.TotalScore = &score
				s.Require().NoError(s.apps.Create(s.openCtx(), app))

				_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, event,
					service.TransitionInput{Reason: "grid"})
				s.Require().Error(err)
				s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition),
					"expected invalid transition, got %v", err)

				persisted, err := s.svc.GetApplication(s.closedCtx(), s.tenantID, app.ID)
				s.Require().NoError(err)
				s.Equal(status, persisted.Status, "persisted state must not move")
				s.Equal(1, persisted.Version)
			})
		}
	}
}

func (s *IntakeServiceSuite) TestRunSelection() {
	// Three zonasi candidates and one prestasi candidate, all unscored.
	var apps []*models.Application
	for i := 0; i < 3; i++ {
		app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPS", "zonasi"))
		s.Require().NoError(err)
		apps = append(apps, app)
	}
	unscored, err := s.svc.Submit(s.openCtx(), s.submitInput("IPS", "prestasi"))
	s.Require().NoError(err)

	s.Run("before the window closes the run is rejected", func() {
		_, err := s.svc.RunSelection(s.openCtx(), s.tenantID, s.cfg.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationClosed))
	})

	s.Run("first run advances and reports missing scores", func() {
		result, err := s.svc.RunSelection(s.closedCtx(), s.tenantID, s.cfg.ID)
		s.Require().NoError(err)
		s.Equal(4, result.Advanced)
		s.Empty(result.Announced)
		s.Len(result.Skipped, 4, "every candidate still lacks a total score")
		for _, issue := range result.Skipped {
			s.True(dErrors.HasCode(issue.Err, dErrors.CodeMissingScore))
		}
	})

	// Score three candidates: 90, 80, 70. Quota for (IPS, zonasi) is
	// unconfigured, so cap it via an updated configuration instead.
	cfg, err := s.svc.GetConfiguration(s.closedCtx(), s.tenantID, s.cfg.ID)
	s.Require().NoError(err)
	cfg.Quotas = append(cfg.Quotas, models.QuotaRule{Track: "IPS", Pathway: "zonasi", Limit: 2})
	_, err = s.svc.UpdateConfiguration(s.closedCtx(), cfg)
	s.Require().NoError(err)

	for i, value := range []float64{90, 80, 70} {
		_, err := s.svc.RecordScore(s.closedCtx(), s.tenantID, apps[i].ID, models.ScoreSelection, value)
		s.Require().NoError(err)
	}

	s.Run("second run announces the top candidates within quota", func() {
		result, err := s.svc.RunSelection(s.closedCtx(), s.tenantID, s.cfg.ID)
		s.Require().NoError(err)
		s.Equal(0, result.Advanced)
		s.Require().Len(result.Announced, 2)
		s.Equal(apps[0].ID, result.Announced[0].ID, "highest total first")
		s.Equal(apps[1].ID, result.Announced[1].ID)
		s.Require().Len(result.Declined, 1)
		s.Equal(apps[2].ID, result.Declined[0].ID)

		s.Require().Len(result.Skipped, 1)
		s.Equal(unscored.ID, result.Skipped[0].ApplicationID)
		s.True(dErrors.HasCode(result.Skipped[0].Err, dErrors.CodeMissingScore))

		// Declined candidates stay in selection for staff review.
		declined, err := s.svc.GetApplication(s.closedCtx(), s.tenantID, apps[2].ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSelection, declined.Status)
	})

	s.Run("a repeated run never admits past the quota", func() {
		result, err := s.svc.RunSelection(s.closedCtx(), s.tenantID, s.cfg.ID)
		s.Require().NoError(err)
		s.Empty(result.Announced, "both quota seats are already held")
		s.Require().Len(result.Declined, 1)
		s.Equal(apps[2].ID, result.Declined[0].ID)

		all, err := s.svc.ListApplications(s.closedCtx(), s.tenantID, s.cfg.ID)
		s.Require().NoError(err)
		announced := 0
		for _, app := range all {
			if app.Status == models.StatusAnnounced {
				announced++
			}
		}
		s.Equal(2, announced, "announcements must stay within the pair quota")
	})
}

func (s *IntakeServiceSuite) TestPaymentAndDocuments() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)

	paid, err := s.svc.MarkPaid(s.openCtx(), s.tenantID, app.ID, 250_000)
	s.Require().NoError(err)
	s.True(paid.Paid)
	s.Equal(int64(250_000), paid.PaymentAmount)
	s.Require().NotNil(paid.PaymentDate)

	_, err = s.svc.MarkPaid(s.openCtx(), s.tenantID, app.ID, -5)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	withDocs, err := s.svc.SetDocumentStatus(s.openCtx(), s.tenantID, app.ID, "ijazah", models.DocumentValid)
	s.Require().NoError(err)
	s.Equal(models.DocumentValid, withDocs.Documents["ijazah"])

	_, err = s.svc.SetDocumentStatus(s.openCtx(), s.tenantID, app.ID, "kk", models.DocumentStatus("lost"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *IntakeServiceSuite) TestReRegister() {
	app, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventBeginSelection, service.TransitionInput{})
	s.Require().NoError(err)
	_, err = s.svc.RecordScore(s.closedCtx(), s.tenantID, app.ID, models.ScoreSelection, 95)
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAnnounce, service.TransitionInput{})
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.closedCtx(), s.tenantID, app.ID, models.EventAccept, service.TransitionInput{})
	s.Require().NoError(err)

	s.Run("outside the window", func() {
		_, err := s.svc.ReRegister(s.closedCtx(), s.tenantID, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationClosed))
	})

	s.Run("inside the window", func() {
		inWindow := requestcontext.WithTime(context.Background(), baseTime.Add(100*time.Hour))
		updated, err := s.svc.ReRegister(inWindow, s.tenantID, app.ID)
		s.Require().NoError(err)
		s.Require().NotNil(updated.ReRegisteredAt)
	})
}

func (s *IntakeServiceSuite) TestConfigurationLifecycle() {
	s.Run("batch code collisions conflict", func() {
		cfg := &models.IntakeConfiguration{
			TenantID:          s.tenantID,
			CycleYear:         2025,
			BatchLabel:        "Pendaftaran Gelombang 1", // same trailing ordinal
			RegistrationStart: baseTime,
			RegistrationEnd:   baseTime.Add(time.Hour),
			Tracks:            []string{"IPA"},
			Pathways:          []models.PathwayRule{{Name: "zonasi"}},
			AdmissionPolicy:   models.PolicyRankedQuota,
		}
		_, err := s.svc.CreateConfiguration(s.openCtx(), cfg)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("label without ordinal is rejected", func() {
		cfg := &models.IntakeConfiguration{
			TenantID:   s.tenantID,
			CycleYear:  2025,
			BatchLabel: "Gelombang Utama",
		}
		_, err := s.svc.CreateConfiguration(s.openCtx(), cfg)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("identity fields freeze once referenced", func() {
		_, err := s.svc.Submit(s.openCtx(), s.submitInput("IPA", "zonasi"))
		s.Require().NoError(err)

		cfg, err := s.svc.GetConfiguration(s.openCtx(), s.tenantID, s.cfg.ID)
		s.Require().NoError(err)
		cfg.BatchLabel = "Gelombang 7"
		_, err = s.svc.UpdateConfiguration(s.openCtx(), cfg)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

// TestSubmitConcurrentUniqueness races many submissions: every accepted
// application must carry a distinct registration id.
func TestSubmitConcurrentUniqueness(t *testing.T) {
	apps := application.NewInMemory()
	configs := intakeconfig.NewInMemory()
	allocator, err := sequence.New(sequence.NewInMemory())
	if err != nil {
		t.Fatal(err)
	}
	quotas, err := quota.New(quota.NewInMemory())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := service.New(apps, configs, allocator, quotas)
	if err != nil {
		t.Fatal(err)
	}

	tenantID := id.NewTenantID()
	ctx := requestcontext.WithTime(context.Background(), baseTime)
	cfg, err := svc.CreateConfiguration(ctx, &models.IntakeConfiguration{
		TenantID:          tenantID,
		CycleYear:         2025,
		BatchLabel:        "Gelombang 1",
		RegistrationStart: baseTime.Add(-time.Hour),
		RegistrationEnd:   baseTime.Add(time.Hour),
		Tracks:            []string{"IPA"},
		Pathways:          []models.PathwayRule{{Name: "zonasi"}},
		AdmissionPolicy:   models.PolicyRankedQuota,
		Active:            true,
	})
	if err != nil {
		t.Fatal(err)
	}

	const submissions = 1000
	var wg sync.WaitGroup
	var failures atomic.Int64
	ids := make([]string, submissions)

	wg.Add(submissions)
	for i := 0; i < submissions; i++ {
		go func(i int) {
			defer wg.Done()
			app, err := svc.Submit(ctx, service.SubmitInput{
				TenantID:  tenantID,
				BatchID:   cfg.ID,
				Candidate: models.Candidate{FullName: fmt.Sprintf("Candidate %d", i)},
				Track:     "IPA",
				Pathway:   "zonasi",
			})
			if err != nil {
				failures.Add(1)
				return
			}
			ids[i] = app.RegistrationID
		}(i)
	}
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Fatalf("%d submissions failed", n)
	}
	seen := make(map[string]struct{}, submissions)
	for _, regID := range ids {
		if regID == "" {
			t.Fatal("missing registration id")
		}
		if _, dup := seen[regID]; dup {
			t.Fatalf("duplicate registration id %s", regID)
		}
		seen[regID] = struct{}{}
	}
	if len(seen) != submissions {
		t.Fatalf("expected %d distinct ids, got %d", submissions, len(seen))
	}
}
