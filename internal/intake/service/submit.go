package service

import (
	"context"
	"errors"
	"time"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/sequence"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/platform/sentinel"
	"ppdb/pkg/requestcontext"
)

// createAttempts bounds the persist-retry loop before the clock fallback.
const createAttempts = 50

// SubmitInput is a candidate's submission for one batch.
type SubmitInput struct {
	TenantID  id.TenantID
	BatchID   id.BatchID
	Candidate models.Candidate
	Track     string
	Pathway   string
	Notes     string
}

// Submit runs the registration pipeline: window check, quota reservation,
// sequence allocation, identifier formatting, persistence. The application
// lands in registered (or announced, for auto-approved bypass pathways).
// Submission is not idempotent: retried requests create new applications.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit")
	defer span.End()

	now := requestcontext.Now(ctx)

	cfg, err := s.loadConfig(ctx, input.TenantID, input.BatchID)
	if err != nil {
		return nil, err
	}
	if !cfg.RegistrationOpenAt(now) {
		return nil, dErrors.Newf(dErrors.CodeConfigurationClosed,
			"batch %s is not accepting submissions", cfg.BatchLabel)
	}
	if !cfg.HasTrack(input.Track) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "track %q is not offered in this batch", input.Track)
	}
	rule, ok := cfg.PathwayRule(input.Pathway)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "pathway %q is not offered in this batch", input.Pathway)
	}

	// Quota first: a rejected submission must not consume an identifier.
	reservation, err := s.quotas.Reserve(ctx, cfg, input.Track, input.Pathway)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeQuotaExceeded) {
			s.metrics.IncQuotaRejected()
		}
		return nil, err
	}

	app, err := s.createWithUniqueID(ctx, cfg, input, now)
	if err != nil {
		s.releaseQuota(ctx, reservation)
		return nil, err
	}

	s.metrics.IncSubmissions()
	s.metrics.IncTransition(string(models.EventRegister))
	s.publish(ctx, events.Event{
		Type:           events.TypeRegistered,
		TenantID:       app.TenantID.String(),
		ApplicationID:  app.ID.String(),
		RegistrationID: app.RegistrationID,
		OccurredAt:     now,
	})

	if cfg.AutoApprove && rule.BypassScoring {
		return s.autoApprove(ctx, app)
	}
	return app, nil
}

// createWithUniqueID allocates a sequence, formats the identifier, and
// persists. A unique-constraint conflict means the counter lags persisted
// identifiers (bootstrap from foreign data, counter reset), so the loop
// re-seeds from the stored maximum and tries again. After the budget the
// clock-derived sequence guarantees the submission still lands.
func (s *Service) createWithUniqueID(ctx context.Context, cfg *models.IntakeConfiguration,
	input SubmitInput, now time.Time) (*models.Application, error) {

	key := sequence.Key{TenantID: cfg.TenantID, CycleYear: cfg.CycleYear, BatchCode: cfg.BatchCode}

	for attempt := 0; attempt < createAttempts; attempt++ {
		seq, err := s.allocator.Next(ctx, key)
		if err != nil {
			return nil, err
		}

		app, err := s.buildRegistered(cfg, input, seq, now)
		if err != nil {
			return nil, err
		}

		err = s.apps.Create(ctx, app)
		if err == nil {
			return app, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist application")
		}

		maxSeq, maxErr := s.apps.MaxSequence(ctx, cfg.TenantID, cfg.ID)
		if maxErr != nil {
			return nil, dErrors.Wrap(maxErr, dErrors.CodeInternal, "failed to recover sequence position")
		}
		if seedErr := s.allocator.InitializeFrom(ctx, key, maxSeq); seedErr != nil {
			return nil, seedErr
		}
		s.logger.WarnContext(ctx, "registration id conflict, counter re-seeded",
			"key", key.String(),
			"attempt", attempt+1,
			"reseeded_to", maxSeq,
		)
	}

	// Retry budget exhausted: synthesize a clock sequence so the candidate
	// is not turned away. This indicates an allocator defect and pages.
	s.metrics.IncSequenceFallback()
	seq := s.allocator.ClockSequence()
	app, err := s.buildRegistered(cfg, input, seq, now)
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDuplicateIdentifier,
			"registration id allocation exhausted")
		s.logger.ErrorContext(ctx, "registration id allocation exhausted",
			"key", key.String(),
			"registration_id", app.RegistrationID,
			"error", err,
		)
		return nil, wrapped
	}
	s.logger.ErrorContext(ctx, "clock-derived registration sequence used",
		"key", key.String(),
		"registration_id", app.RegistrationID,
	)
	return app, nil
}

func (s *Service) buildRegistered(cfg *models.IntakeConfiguration, input SubmitInput,
	seq int, now time.Time) (*models.Application, error) {

	regID := s.formatter.Format(cfg.CycleYear, cfg.BatchCode, seq)
	app, err := models.NewApplication(
		id.NewApplicationID(), cfg.TenantID, cfg.ID,
		regID, seq, cfg.CycleYear,
		input.Candidate, input.Track, input.Pathway, now,
	)
	if err != nil {
		return nil, err
	}
	app.Notes = input.Notes

	if err := app.CanRegister(); err != nil {
		return nil, err
	}
	app.ApplyRegister(now)
	return app, nil
}

// autoApprove advances a bypass-scoring application straight to announced.
// The window check is skipped: the announcement is part of the submission,
// not a later selection run.
func (s *Service) autoApprove(ctx context.Context, app *models.Application) (*models.Application, error) {
	now := requestcontext.Now(ctx)

	updated, err := s.apps.Execute(ctx, app.TenantID, app.ID, func(a *models.Application) error {
		if err := a.CanBeginSelection(nil, now); err != nil {
			return err
		}
		a.ApplyBeginSelection(now)
		if err := a.CanAnnounce(true); err != nil {
			return err
		}
		a.ApplyAnnounce(now)
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "auto-approval failed")
	}

	s.metrics.IncTransition(string(models.EventBeginSelection))
	s.metrics.IncTransition(string(models.EventAnnounce))
	s.publish(ctx, events.Event{
		Type:           events.TypeAnnounced,
		TenantID:       updated.TenantID.String(),
		ApplicationID:  updated.ID.String(),
		RegistrationID: updated.RegistrationID,
		TotalScore:     updated.TotalScore,
		OccurredAt:     now,
	})
	return updated, nil
}
