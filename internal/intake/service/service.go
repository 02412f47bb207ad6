// Package service orchestrates the intake pipeline: submission, lifecycle
// transitions, scoring, and selection runs. All invariant checks happen
// inside the application store's Execute callback; the service sequences
// them and owns quota, identifiers, events, and metrics.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/metrics"
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/quota"
	"ppdb/internal/intake/regid"
	"ppdb/internal/intake/scoring"
	"ppdb/internal/intake/sequence"
	"ppdb/internal/intake/store/application"
	"ppdb/internal/intake/store/intakeconfig"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/platform/sentinel"
	"ppdb/pkg/requestcontext"
)

// Service is the intake orchestrator.
type Service struct {
	apps      application.Store
	configs   intakeconfig.Store
	allocator *sequence.Allocator
	quotas    *quota.Manager
	scores    *scoring.Engine
	formatter *regid.Formatter

	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(apps application.Store, configs intakeconfig.Store,
	allocator *sequence.Allocator, quotas *quota.Manager, opts ...Option) (*Service, error) {

	if apps == nil {
		return nil, errors.New("application store is required")
	}
	if configs == nil {
		return nil, errors.New("configuration store is required")
	}
	if allocator == nil {
		return nil, errors.New("sequence allocator is required")
	}
	if quotas == nil {
		return nil, errors.New("quota manager is required")
	}

	s := &Service{
		apps:      apps,
		configs:   configs,
		allocator: allocator,
		quotas:    quotas,
		scores:    scoring.New(),
		formatter: regid.New(""),
		publisher: events.Nop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("ppdb/intake"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateConfiguration registers a new batch. The batch code is derived from
// the label's trailing ordinal, never supplied by the caller.
func (s *Service) CreateConfiguration(ctx context.Context, cfg *models.IntakeConfiguration) (*models.IntakeConfiguration, error) {
	ctx, span := s.tracer.Start(ctx, "intake.CreateConfiguration")
	defer span.End()

	code, err := regid.BatchCode(cfg.BatchLabel)
	if err != nil {
		return nil, err
	}
	cfg.BatchCode = code
	if cfg.ID.IsNil() {
		cfg.ID = id.NewBatchID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.configs.Create(ctx, cfg); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"batch %s already exists for cycle %d", cfg.BatchCode, cfg.CycleYear)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create configuration")
	}
	return cfg, nil
}

// UpdateConfiguration applies administrative corrections. Once applications
// reference the batch, the identity fields (cycle year, batch code) are
// frozen; windows, quotas, and flags stay correctable.
func (s *Service) UpdateConfiguration(ctx context.Context, cfg *models.IntakeConfiguration) (*models.IntakeConfiguration, error) {
	ctx, span := s.tracer.Start(ctx, "intake.UpdateConfiguration")
	defer span.End()

	current, err := s.configs.FindByID(ctx, cfg.TenantID, cfg.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "batch %s not found", cfg.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load configuration")
	}

	cfg.BatchCode = current.BatchCode
	if cfg.BatchLabel != current.BatchLabel {
		code, err := regid.BatchCode(cfg.BatchLabel)
		if err != nil {
			return nil, err
		}
		cfg.BatchCode = code
	}

	if cfg.CycleYear != current.CycleYear || cfg.BatchCode != current.BatchCode {
		maxSeq, err := s.apps.MaxSequence(ctx, cfg.TenantID, cfg.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check batch references")
		}
		if maxSeq > 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				"cycle year and batch code are frozen once applications reference the batch")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.CreatedAt = current.CreatedAt
	cfg.UpdatedAt = requestcontext.Now(ctx)

	if err := s.configs.Update(ctx, cfg); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "batch %s not found", cfg.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update configuration")
	}
	return cfg, nil
}

// SetConfigurationActive toggles whether the batch accepts submissions.
func (s *Service) SetConfigurationActive(ctx context.Context, tenantID id.TenantID, batchID id.BatchID, active bool) (*models.IntakeConfiguration, error) {
	cfg, err := s.loadConfig(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	cfg.Active = active
	cfg.UpdatedAt = requestcontext.Now(ctx)
	if err := s.configs.Update(ctx, cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update configuration")
	}
	return cfg, nil
}

// GetConfiguration returns one batch configuration.
func (s *Service) GetConfiguration(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error) {
	return s.loadConfig(ctx, tenantID, batchID)
}

// ListConfigurations returns the tenant's batches ordered by window start.
func (s *Service) ListConfigurations(ctx context.Context, tenantID id.TenantID) ([]*models.IntakeConfiguration, error) {
	configs, err := s.configs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list configurations")
	}
	return configs, nil
}

// GetApplication returns one application.
func (s *Service) GetApplication(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, tenantID, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// FindByRegistrationID resolves the candidate-facing identifier.
func (s *Service) FindByRegistrationID(ctx context.Context, tenantID id.TenantID, regID string) (*models.Application, error) {
	if _, err := s.formatter.Parse(regID); err != nil {
		return nil, err
	}
	app, err := s.apps.FindByRegistrationID(ctx, tenantID, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "registration %s not found", regID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// ListApplications returns a batch's applications ordered by sequence.
func (s *Service) ListApplications(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error) {
	apps, err := s.apps.ListByBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// RankApplications returns a batch's applications in selection order.
func (s *Service) RankApplications(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error) {
	apps, err := s.ListApplications(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	s.scores.Rank(apps)
	return apps, nil
}

func (s *Service) loadConfig(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error) {
	cfg, err := s.configs.FindByID(ctx, tenantID, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "batch %s not found", batchID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load configuration")
	}
	return cfg, nil
}

// publish emits a lifecycle event. Event delivery is observability, not
// state: failures log a warning and the operation still succeeds.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish application event",
			"type", string(event.Type),
			"application_id", event.ApplicationID,
			"error", err,
		)
		return
	}
	s.metrics.IncEventPublished(string(event.Type))
}
