package handler

import (
	"time"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
)

type submitRequest struct {
	Candidate models.Candidate `json:"candidate"`
	Track     string           `json:"track"`
	Pathway   string           `json:"pathway"`
	Notes     string           `json:"notes,omitempty"`
}

type transitionRequest struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

type scoreRequest struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

type paymentRequest struct {
	Amount int64 `json:"amount"`
}

type documentRequest struct {
	Status string `json:"status"`
}

type activationRequest struct {
	Active bool `json:"active"`
}

type configurationRequest struct {
	CycleYear  int    `json:"cycle_year"`
	BatchLabel string `json:"batch_label"`

	RegistrationStart   time.Time `json:"registration_start"`
	RegistrationEnd     time.Time `json:"registration_end"`
	AnnouncementDate    time.Time `json:"announcement_date,omitzero"`
	ReRegistrationStart time.Time `json:"reregistration_start,omitzero"`
	ReRegistrationEnd   time.Time `json:"reregistration_end,omitzero"`

	Tracks   []string             `json:"tracks"`
	Pathways []models.PathwayRule `json:"pathways"`
	Quotas   []models.QuotaRule   `json:"quotas,omitempty"`

	MaxApplications int   `json:"max_applications,omitempty"`
	FeeAmount       int64 `json:"fee_amount,omitempty"`

	AutoApprove bool `json:"auto_approve,omitempty"`
	Active      bool `json:"active"`

	AdmissionPolicy string  `json:"admission_policy"`
	ThresholdScore  float64 `json:"threshold_score,omitempty"`
}

func (r *configurationRequest) toModel(tenantID id.TenantID, batchID id.BatchID) *models.IntakeConfiguration {
	return &models.IntakeConfiguration{
		ID:                  batchID,
		TenantID:            tenantID,
		CycleYear:           r.CycleYear,
		BatchLabel:          r.BatchLabel,
		RegistrationStart:   r.RegistrationStart,
		RegistrationEnd:     r.RegistrationEnd,
		AnnouncementDate:    r.AnnouncementDate,
		ReRegistrationStart: r.ReRegistrationStart,
		ReRegistrationEnd:   r.ReRegistrationEnd,
		Tracks:              r.Tracks,
		Pathways:            r.Pathways,
		Quotas:              r.Quotas,
		MaxApplications:     r.MaxApplications,
		FeeAmount:           r.FeeAmount,
		AutoApprove:         r.AutoApprove,
		Active:              r.Active,
		AdmissionPolicy:     r.AdmissionPolicy,
		ThresholdScore:      r.ThresholdScore,
	}
}
