package service

import (
	"context"
	"errors"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/quota"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/platform/sentinel"
	"ppdb/pkg/requestcontext"
)

// TransitionInput carries the event-specific options.
type TransitionInput struct {
	// Reason is required for reject, ignored otherwise.
	Reason string
}

// Transition fires one staff-driven lifecycle event. Check and mutation run
// inside the store's Execute callback; an illegal (state, event) pair fails
// with CodeInvalidTransition and the persisted state is untouched.
func (s *Service) Transition(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID,
	event models.Event, input TransitionInput) (*models.Application, error) {

	ctx, span := s.tracer.Start(ctx, "intake.Transition")
	defer span.End()

	now := requestcontext.Now(ctx)

	current, err := s.GetApplication(ctx, tenantID, appID)
	if err != nil {
		return nil, err
	}

	// begin_selection and announce consult the batch configuration; load it
	// outside the lock, the relevant fields are frozen once referenced.
	var cfg *models.IntakeConfiguration
	switch event {
	case models.EventBeginSelection, models.EventAnnounce:
		cfg, err = s.loadConfig(ctx, tenantID, current.BatchID)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.apps.Execute(ctx, tenantID, appID, func(a *models.Application) error {
		switch event {
		case models.EventRegister:
			if err := a.CanRegister(); err != nil {
				return err
			}
			a.ApplyRegister(now)
		case models.EventBeginSelection:
			if err := a.CanBeginSelection(cfg, now); err != nil {
				return err
			}
			a.ApplyBeginSelection(now)
		case models.EventAnnounce:
			rule, _ := cfg.PathwayRule(a.Pathway)
			if err := a.CanAnnounce(rule.BypassScoring); err != nil {
				return err
			}
			a.ApplyAnnounce(now)
		case models.EventAccept:
			if err := a.CanAccept(); err != nil {
				return err
			}
			a.ApplyAccept(now)
		case models.EventReject:
			if err := a.CanReject(input.Reason); err != nil {
				return err
			}
			a.ApplyReject(input.Reason, now)
		case models.EventCancel:
			if err := a.CanCancel(); err != nil {
				return err
			}
			a.ApplyCancel(now)
		default:
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown transition event %q", event)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, err
	}

	s.metrics.IncTransition(string(event))
	s.afterTransition(ctx, updated, event, input)
	return updated, nil
}

// afterTransition releases capacity and emits the lifecycle event once the
// new state is durable.
func (s *Service) afterTransition(ctx context.Context, app *models.Application,
	event models.Event, input TransitionInput) {

	now := requestcontext.Now(ctx)
	base := events.Event{
		TenantID:       app.TenantID.String(),
		ApplicationID:  app.ID.String(),
		RegistrationID: app.RegistrationID,
		OccurredAt:     now,
	}

	switch event {
	case models.EventAnnounce:
		base.Type = events.TypeAnnounced
		base.TotalScore = app.TotalScore
		s.publish(ctx, base)
	case models.EventAccept:
		base.Type = events.TypeAccepted
		s.publish(ctx, base)
	case models.EventReject:
		s.releaseCapacityFor(ctx, app)
		base.Type = events.TypeRejected
		base.Reason = input.Reason
		s.publish(ctx, base)
	case models.EventCancel:
		s.releaseCapacityFor(ctx, app)
		base.Type = events.TypeCancelled
		s.publish(ctx, base)
	}
}

// RecordScore writes one sub-score and recomputes the total. Scores are
// only writable while the application sits in selection.
func (s *Service) RecordScore(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID,
	kind models.ScoreKind, value float64) (*models.Application, error) {

	ctx, span := s.tracer.Start(ctx, "intake.RecordScore")
	defer span.End()

	now := requestcontext.Now(ctx)

	updated, err := s.apps.Execute(ctx, tenantID, appID, func(a *models.Application) error {
		if a.Status != models.StatusSelection {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"scores can only be recorded during selection (current: %s)", a.Status)
		}
		if err := s.scores.RecordSubscore(a, kind, value); err != nil {
			return err
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, err
	}
	return updated, nil
}

// MarkPaid records an externally confirmed registration fee payment.
func (s *Service) MarkPaid(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID, amount int64) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "intake.MarkPaid")
	defer span.End()

	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment amount must be positive")
	}
	now := requestcontext.Now(ctx)

	updated, err := s.apps.Execute(ctx, tenantID, appID, func(a *models.Application) error {
		if err := a.CanMarkPaid(); err != nil {
			return err
		}
		a.ApplyPayment(amount, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, err
	}
	return updated, nil
}

// SetDocumentStatus records one document slot's verification result.
func (s *Service) SetDocumentStatus(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID,
	slot string, status models.DocumentStatus) (*models.Application, error) {

	ctx, span := s.tracer.Start(ctx, "intake.SetDocumentStatus")
	defer span.End()

	now := requestcontext.Now(ctx)

	updated, err := s.apps.Execute(ctx, tenantID, appID, func(a *models.Application) error {
		return a.SetDocumentStatus(slot, status, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, err
	}
	return updated, nil
}

// ReRegister records the accepted candidate's enrollment confirmation,
// only inside the batch's re-registration window.
func (s *Service) ReRegister(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "intake.ReRegister")
	defer span.End()

	now := requestcontext.Now(ctx)

	current, err := s.GetApplication(ctx, tenantID, appID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadConfig(ctx, tenantID, current.BatchID)
	if err != nil {
		return nil, err
	}

	updated, err := s.apps.Execute(ctx, tenantID, appID, func(a *models.Application) error {
		if err := a.CanReRegister(cfg, now); err != nil {
			return err
		}
		a.ApplyReRegister(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) releaseCapacityFor(ctx context.Context, app *models.Application) {
	s.releaseQuota(ctx, &quota.Reservation{
		TenantID: app.TenantID,
		BatchID:  app.BatchID,
		Track:    app.Track,
		Pathway:  app.Pathway,
	})
}

func (s *Service) releaseQuota(ctx context.Context, r *quota.Reservation) {
	if err := s.quotas.Release(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "failed to release quota reservation",
			"tenant_id", r.TenantID.String(),
			"batch_id", r.BatchID.String(),
			"track", r.Track,
			"pathway", r.Pathway,
			"error", err,
		)
	}
}
