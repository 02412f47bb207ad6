package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/policy"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/requestcontext"
)

// selectionConcurrency bounds the transition fan-out of one run.
const selectionConcurrency = 8

// SelectionIssue reports one application the run could not advance.
type SelectionIssue struct {
	ApplicationID  id.ApplicationID
	RegistrationID string
	Err            error
}

// SelectionResult summarizes one selection run.
type SelectionResult struct {
	// Advanced moved registered -> selection during this run.
	Advanced int
	// Announced were admitted by the policy and moved to announced.
	Announced []*models.Application
	// Declined were considered but not admitted; they stay in selection
	// for staff review.
	Declined []*models.Application
	// Skipped could not be processed (missing total score, transition
	// failure). Per-application, never fatal to the run.
	Skipped []SelectionIssue
}

// RunSelection executes the batch's admission round: registered
// applications advance to selection, the configured policy decides
// admission over everything sitting in selection, and admitted
// applications are announced. Applications without a total score (and not
// on a bypass-scoring pathway) are reported in Skipped with
// CodeMissingScore.
func (s *Service) RunSelection(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*SelectionResult, error) {
	ctx, span := s.tracer.Start(ctx, "intake.RunSelection")
	defer span.End()

	started := time.Now()
	defer func() { s.metrics.ObserveSelectionRun(time.Since(started)) }()

	now := requestcontext.Now(ctx)

	cfg, err := s.loadConfig(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if !cfg.RegistrationClosedAt(now) {
		return nil, dErrors.New(dErrors.CodeConfigurationClosed,
			"selection cannot run before the registration window closes")
	}
	admission, err := policy.ForConfiguration(cfg)
	if err != nil {
		return nil, err
	}

	apps, err := s.ListApplications(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}

	result := &SelectionResult{}

	// Phase 1: advance registered applications into selection.
	advanced := s.advanceRegistered(ctx, cfg, apps, result)

	// Phase 2: partition selection candidates by score availability.
	var candidates []*models.Application
	for _, app := range advanced {
		if app.Status != models.StatusSelection {
			continue
		}
		rule, _ := cfg.PathwayRule(app.Pathway)
		if app.TotalScore == nil && !rule.BypassScoring {
			result.Skipped = append(result.Skipped, SelectionIssue{
				ApplicationID:  app.ID,
				RegistrationID: app.RegistrationID,
				Err: dErrors.Newf(dErrors.CodeMissingScore,
					"application %s has no computed total score", app.RegistrationID),
			})
			continue
		}
		candidates = append(candidates, app)
	}

	// Phase 3: policy decides over the seats still open, admitted
	// applications are announced.
	outcome := admission.Decide(cfg, candidates, policy.CountAdmitted(advanced))
	result.Declined = outcome.Declined
	s.announceAdmitted(ctx, cfg, outcome.Admitted, now, result)

	s.logger.InfoContext(ctx, "selection run finished",
		"batch_id", batchID.String(),
		"policy", admission.Name(),
		"advanced", result.Advanced,
		"announced", len(result.Announced),
		"declined", len(result.Declined),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// advanceRegistered moves registered applications to selection and returns
// the refreshed working set. Failures are collected per application.
func (s *Service) advanceRegistered(ctx context.Context, cfg *models.IntakeConfiguration,
	apps []*models.Application, result *SelectionResult) []*models.Application {

	now := requestcontext.Now(ctx)

	type advanceOutcome struct {
		index int
		app   *models.Application
		issue *SelectionIssue
	}

	outcomes := make([]advanceOutcome, len(apps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(selectionConcurrency)

	for i, app := range apps {
		g.Go(func() error {
			if app.Status != models.StatusRegistered {
				outcomes[i] = advanceOutcome{index: i, app: app}
				return nil
			}
			updated, err := s.apps.Execute(gctx, cfg.TenantID, app.ID, func(a *models.Application) error {
				if err := a.CanBeginSelection(cfg, now); err != nil {
					return err
				}
				a.ApplyBeginSelection(now)
				return nil
			})
			if err != nil {
				outcomes[i] = advanceOutcome{index: i, app: app, issue: &SelectionIssue{
					ApplicationID:  app.ID,
					RegistrationID: app.RegistrationID,
					Err:            err,
				}}
				return nil
			}
			s.metrics.IncTransition(string(models.EventBeginSelection))
			outcomes[i] = advanceOutcome{index: i, app: updated}
			return nil
		})
	}
	_ = g.Wait()

	working := make([]*models.Application, 0, len(apps))
	for _, o := range outcomes {
		if o.issue != nil {
			result.Skipped = append(result.Skipped, *o.issue)
			continue
		}
		if o.app.Status == models.StatusSelection && apps[o.index].Status == models.StatusRegistered {
			result.Advanced++
		}
		working = append(working, o.app)
	}
	return working
}

// announceAdmitted transitions the policy's admitted set to announced.
func (s *Service) announceAdmitted(ctx context.Context, cfg *models.IntakeConfiguration,
	admitted []*models.Application, now time.Time, result *SelectionResult) {

	for _, app := range admitted {
		rule, _ := cfg.PathwayRule(app.Pathway)
		updated, err := s.apps.Execute(ctx, cfg.TenantID, app.ID, func(a *models.Application) error {
			if err := a.CanAnnounce(rule.BypassScoring); err != nil {
				return err
			}
			a.ApplyAnnounce(now)
			return nil
		})
		if err != nil {
			result.Skipped = append(result.Skipped, SelectionIssue{
				ApplicationID:  app.ID,
				RegistrationID: app.RegistrationID,
				Err:            err,
			})
			continue
		}
		s.metrics.IncTransition(string(models.EventAnnounce))
		s.publish(ctx, events.Event{
			Type:           events.TypeAnnounced,
			TenantID:       updated.TenantID.String(),
			ApplicationID:  updated.ID.String(),
			RegistrationID: updated.RegistrationID,
			TotalScore:     updated.TotalScore,
			OccurredAt:     now,
		})
		result.Announced = append(result.Announced, updated)
	}
}
