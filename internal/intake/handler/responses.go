package handler

import (
	"time"

	"ppdb/internal/intake/models"
	"ppdb/internal/intake/service"
)

type applicationResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	BatchID        string `json:"batch_id"`
	RegistrationID string `json:"registration_id"`
	CycleYear      int    `json:"cycle_year"`

	Candidate models.Candidate `json:"candidate"`
	Track     string           `json:"track"`
	Pathway   string           `json:"pathway"`

	SelectionScore *float64 `json:"selection_score,omitempty"`
	InterviewScore *float64 `json:"interview_score,omitempty"`
	DocumentScore  *float64 `json:"document_score,omitempty"`
	TotalScore     *float64 `json:"total_score,omitempty"`

	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Notes           string `json:"notes,omitempty"`

	Paid          bool       `json:"paid"`
	PaymentAmount int64      `json:"payment_amount,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`

	Documents map[string]models.DocumentStatus `json:"documents,omitempty"`

	RegisteredAt   *time.Time `json:"registered_at,omitempty"`
	SelectionAt    *time.Time `json:"selection_at,omitempty"`
	AnnouncedAt    *time.Time `json:"announced_at,omitempty"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	ReRegisteredAt *time.Time `json:"reregistered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toApplicationResponse(app *models.Application) *applicationResponse {
	return &applicationResponse{
		ID:              app.ID.String(),
		TenantID:        app.TenantID.String(),
		BatchID:         app.BatchID.String(),
		RegistrationID:  app.RegistrationID,
		CycleYear:       app.CycleYear,
		Candidate:       app.Candidate,
		Track:           app.Track,
		Pathway:         app.Pathway,
		SelectionScore:  app.SelectionScore,
		InterviewScore:  app.InterviewScore,
		DocumentScore:   app.DocumentScore,
		TotalScore:      app.TotalScore,
		Status:          string(app.Status),
		RejectionReason: app.RejectionReason,
		Notes:           app.Notes,
		Paid:            app.Paid,
		PaymentAmount:   app.PaymentAmount,
		PaymentDate:     app.PaymentDate,
		Documents:       app.Documents,
		RegisteredAt:    app.RegisteredAt,
		SelectionAt:     app.SelectionAt,
		AnnouncedAt:     app.AnnouncedAt,
		AcceptedAt:      app.AcceptedAt,
		ReRegisteredAt:  app.ReRegisteredAt,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
}

type configurationResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	CycleYear int    `json:"cycle_year"`

	BatchLabel string `json:"batch_label"`
	BatchCode  string `json:"batch_code"`

	RegistrationStart   time.Time  `json:"registration_start"`
	RegistrationEnd     time.Time  `json:"registration_end"`
	AnnouncementDate    *time.Time `json:"announcement_date,omitempty"`
	ReRegistrationStart *time.Time `json:"reregistration_start,omitempty"`
	ReRegistrationEnd   *time.Time `json:"reregistration_end,omitempty"`

	Tracks   []string             `json:"tracks"`
	Pathways []models.PathwayRule `json:"pathways"`
	Quotas   []models.QuotaRule   `json:"quotas,omitempty"`

	MaxApplications int   `json:"max_applications,omitempty"`
	FeeAmount       int64 `json:"fee_amount,omitempty"`

	AutoApprove bool `json:"auto_approve"`
	Active      bool `json:"active"`

	AdmissionPolicy string  `json:"admission_policy"`
	ThresholdScore  float64 `json:"threshold_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toConfigurationResponse(cfg *models.IntakeConfiguration) *configurationResponse {
	return &configurationResponse{
		ID:                  cfg.ID.String(),
		TenantID:            cfg.TenantID.String(),
		CycleYear:           cfg.CycleYear,
		BatchLabel:          cfg.BatchLabel,
		BatchCode:           cfg.BatchCode,
		RegistrationStart:   cfg.RegistrationStart,
		RegistrationEnd:     cfg.RegistrationEnd,
		AnnouncementDate:    timeOrNil(cfg.AnnouncementDate),
		ReRegistrationStart: timeOrNil(cfg.ReRegistrationStart),
		ReRegistrationEnd:   timeOrNil(cfg.ReRegistrationEnd),
		Tracks:              cfg.Tracks,
		Pathways:            cfg.Pathways,
		Quotas:              cfg.Quotas,
		MaxApplications:     cfg.MaxApplications,
		FeeAmount:           cfg.FeeAmount,
		AutoApprove:         cfg.AutoApprove,
		Active:              cfg.Active,
		AdmissionPolicy:     cfg.AdmissionPolicy,
		ThresholdScore:      cfg.ThresholdScore,
		CreatedAt:           cfg.CreatedAt,
		UpdatedAt:           cfg.UpdatedAt,
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type selectionIssueResponse struct {
	ApplicationID  string `json:"application_id"`
	RegistrationID string `json:"registration_id"`
	Error          string `json:"error"`
}

type selectionResponse struct {
	Advanced  int                      `json:"advanced"`
	Announced []*applicationResponse   `json:"announced"`
	Declined  []*applicationResponse   `json:"declined"`
	Skipped   []selectionIssueResponse `json:"skipped"`
}

func toSelectionResponse(result *service.SelectionResult) *selectionResponse {
	out := &selectionResponse{
		Advanced:  result.Advanced,
		Announced: make([]*applicationResponse, 0, len(result.Announced)),
		Declined:  make([]*applicationResponse, 0, len(result.Declined)),
		Skipped:   make([]selectionIssueResponse, 0, len(result.Skipped)),
	}
	for _, app := range result.Announced {
		out.Announced = append(out.Announced, toApplicationResponse(app))
	}
	for _, app := range result.Declined {
		out.Declined = append(out.Declined, toApplicationResponse(app))
	}
	for _, issue := range result.Skipped {
		out.Skipped = append(out.Skipped, selectionIssueResponse{
			ApplicationID:  issue.ApplicationID.String(),
			RegistrationID: issue.RegistrationID,
			Error:          issue.Err.Error(),
		})
	}
	return out
}
