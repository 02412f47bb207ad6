// Package handler exposes the intake pipeline over HTTP. Candidate-facing
// routes (submission, status lookup) are public; everything that moves an
// application through its lifecycle is staff-only.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ppdb/internal/intake/models"
	"ppdb/internal/intake/service"
	"ppdb/internal/platform/middleware"
	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
	"ppdb/pkg/httputil"
	"ppdb/pkg/requestcontext"
)

// Service is the intake surface the handlers drive.
type Service interface {
	Submit(ctx context.Context, input service.SubmitInput) (*models.Application, error)
	Transition(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID, event models.Event, input service.TransitionInput) (*models.Application, error)
	RecordScore(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID, kind models.ScoreKind, value float64) (*models.Application, error)
	RunSelection(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*service.SelectionResult, error)
	MarkPaid(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID, amount int64) (*models.Application, error)
	SetDocumentStatus(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID, slot string, status models.DocumentStatus) (*models.Application, error)
	ReRegister(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error)
	GetApplication(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error)
	FindByRegistrationID(ctx context.Context, tenantID id.TenantID, regID string) (*models.Application, error)
	ListApplications(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error)
	RankApplications(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error)
	CreateConfiguration(ctx context.Context, cfg *models.IntakeConfiguration) (*models.IntakeConfiguration, error)
	UpdateConfiguration(ctx context.Context, cfg *models.IntakeConfiguration) (*models.IntakeConfiguration, error)
	SetConfigurationActive(ctx context.Context, tenantID id.TenantID, batchID id.BatchID, active bool) (*models.IntakeConfiguration, error)
	GetConfiguration(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error)
	ListConfigurations(ctx context.Context, tenantID id.TenantID) ([]*models.IntakeConfiguration, error)
}

// Handler wires the intake routes.
type Handler struct {
	intake    Service
	logger    *slog.Logger
	validator middleware.StaffValidator
}

func New(intake Service, logger *slog.Logger, validator middleware.StaffValidator) *Handler {
	return &Handler{intake: intake, logger: logger, validator: validator}
}

// Register mounts the intake routes on the router. The middleware chain is
// the caller's job; only the staff guard is applied here.
func (h *Handler) Register(r chi.Router) {
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		// Candidate-facing.
		r.Post("/batches/{batchID}/applications", h.handleSubmit)
		r.Get("/registrations/{registrationID}", h.handleFindByRegistrationID)
		r.Get("/applications/{applicationID}", h.handleGetApplication)

		// Staff-facing.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(h.validator, h.logger))

			r.Post("/applications/{applicationID}/transition", h.handleTransition)
			r.Put("/applications/{applicationID}/scores", h.handleRecordScore)
			r.Post("/applications/{applicationID}/payment", h.handleMarkPaid)
			r.Put("/applications/{applicationID}/documents/{slot}", h.handleSetDocumentStatus)
			r.Post("/applications/{applicationID}/reregister", h.handleReRegister)

			r.Post("/batches", h.handleCreateConfiguration)
			r.Get("/batches", h.handleListConfigurations)
			r.Get("/batches/{batchID}", h.handleGetConfiguration)
			r.Put("/batches/{batchID}", h.handleUpdateConfiguration)
			r.Post("/batches/{batchID}/activation", h.handleSetConfigurationActive)
			r.Get("/batches/{batchID}/applications", h.handleListApplications)
			r.Get("/batches/{batchID}/ranking", h.handleRankApplications)
			r.Post("/batches/{batchID}/selection", h.handleRunSelection)
		})
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	app, err := h.intake.Submit(ctx, service.SubmitInput{
		TenantID:  tenantID,
		BatchID:   batchID,
		Candidate: req.Candidate,
		Track:     req.Track,
		Pathway:   req.Pathway,
		Notes:     req.Notes,
	})
	if err != nil {
		h.logFailure(ctx, "submission failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleFindByRegistrationID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.intake.FindByRegistrationID(ctx, tenantID, chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.intake.GetApplication(ctx, tenantID, appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	event, err := models.ParseEvent(req.Event)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.intake.Transition(ctx, tenantID, appID, event, service.TransitionInput{Reason: req.Reason})
	if err != nil {
		h.logFailure(ctx, "transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	app, err := h.intake.RecordScore(ctx, tenantID, appID, models.ScoreKind(req.Kind), req.Value)
	if err != nil {
		h.logFailure(ctx, "score recording failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	app, err := h.intake.MarkPaid(ctx, tenantID, appID, req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleSetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	app, err := h.intake.SetDocumentStatus(ctx, tenantID, appID, chi.URLParam(r, "slot"), models.DocumentStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleReRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, appID, err := pathApplication(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.intake.ReRegister(ctx, tenantID, appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleRunSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, batchID, err := pathBatch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.intake.RunSelection(ctx, tenantID, batchID)
	if err != nil {
		h.logFailure(ctx, "selection run failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSelectionResponse(result))
}

func (h *Handler) handleCreateConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req configurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cfg, err := h.intake.CreateConfiguration(ctx, req.toModel(tenantID, id.BatchID{}))
	if err != nil {
		h.logFailure(ctx, "configuration creation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toConfigurationResponse(cfg))
}

func (h *Handler) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, batchID, err := pathBatch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req configurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cfg, err := h.intake.UpdateConfiguration(ctx, req.toModel(tenantID, batchID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (h *Handler) handleSetConfigurationActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, batchID, err := pathBatch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req activationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cfg, err := h.intake.SetConfigurationActive(ctx, tenantID, batchID, req.Active)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (h *Handler) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, batchID, err := pathBatch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cfg, err := h.intake.GetConfiguration(ctx, tenantID, batchID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (h *Handler) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	configs, err := h.intake.ListConfigurations(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*configurationResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toConfigurationResponse(cfg))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	h.writeApplicationList(w, r, h.intake.ListApplications)
}

func (h *Handler) handleRankApplications(w http.ResponseWriter, r *http.Request) {
	h.writeApplicationList(w, r, h.intake.RankApplications)
}

func (h *Handler) writeApplicationList(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error)) {

	ctx := r.Context()

	tenantID, batchID, err := pathBatch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	apps, err := list(ctx, tenantID, batchID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationResponse(app))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	log := h.logger.WarnContext
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeDuplicateIdentifier {
		log = h.logger.ErrorContext
	}
	log(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}

func pathApplication(r *http.Request) (id.TenantID, id.ApplicationID, error) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		return id.TenantID{}, id.ApplicationID{}, err
	}
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		return id.TenantID{}, id.ApplicationID{}, err
	}
	return tenantID, appID, nil
}

func pathBatch(r *http.Request) (id.TenantID, id.BatchID, error) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		return id.TenantID{}, id.BatchID{}, err
	}
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		return id.TenantID{}, id.BatchID{}, err
	}
	return tenantID, batchID, nil
}
