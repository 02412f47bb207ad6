package models

import (
	"time"

	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
)

// Candidate holds the applicant's identity and contact fields.
type Candidate struct {
	FullName       string `json:"full_name"`
	NISN           string `json:"nisn,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	SchoolOfOrigin string `json:"school_of_origin,omitempty"`
}

// Application is the aggregate root for one candidate submission.
//
// Invariants:
//   - RegistrationID is unique per tenant
//   - TotalScore, if present, is the mean of whichever sub-scores are present
//   - Status transitions follow the transition table in status.go
//   - A rejected application carries a non-empty RejectionReason
//   - An accepted application has passed through announced (enforced by the
//     table: accept is only legal from announced)
//
// Mutations go through CanX/ApplyX pairs executed inside the store's
// Execute callback, so the check and the write happen under one lock.
// Version backs optimistic locking in the persistent stores.
type Application struct {
	ID             id.ApplicationID
	TenantID       id.TenantID
	BatchID        id.BatchID
	RegistrationID string
	Sequence       int
	CycleYear      int

	Candidate Candidate
	Track     string
	Pathway   string

	SelectionScore *float64
	InterviewScore *float64
	DocumentScore  *float64
	TotalScore     *float64

	Status          Status
	RejectionReason string
	Notes           string

	Paid          bool
	PaymentAmount int64
	PaymentDate   *time.Time

	Documents map[string]DocumentStatus

	RegisteredAt   *time.Time
	SelectionAt    *time.Time
	AnnouncedAt    *time.Time
	AcceptedAt     *time.Time
	ReRegisteredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// NewApplication constructs a pending application. The caller has already
// reserved quota and allocated the registration identifier.
func NewApplication(appID id.ApplicationID, tenantID id.TenantID, batchID id.BatchID,
	regID string, sequence, cycleYear int, cand Candidate, track, pathway string, now time.Time) (*Application, error) {

	if cand.FullName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate full name is required")
	}
	if track == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "track is required")
	}
	if pathway == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pathway is required")
	}
	if regID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registration id is required")
	}

	return &Application{
		ID:             appID,
		TenantID:       tenantID,
		BatchID:        batchID,
		RegistrationID: regID,
		Sequence:       sequence,
		CycleYear:      cycleYear,
		Candidate:      cand,
		Track:          track,
		Pathway:        pathway,
		Status:         StatusPending,
		Documents:      make(map[string]DocumentStatus),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}, nil
}

// canApply checks the transition table only; event-specific preconditions
// live in the typed Can methods below.
func (a *Application) canApply(event Event) error {
	for _, src := range allowedSources[event] {
		if a.Status == src {
			return nil
		}
	}
	return invalidTransition(a.Status, event)
}

// CanRegister checks pending → registered.
func (a *Application) CanRegister() error {
	return a.canApply(EventRegister)
}

// ApplyRegister transitions to registered and stamps registered_at.
func (a *Application) ApplyRegister(now time.Time) {
	a.Status = StatusRegistered
	a.RegisteredAt = &now
	a.UpdatedAt = now
}

// CanBeginSelection checks registered → selection. The batch's registration
// window must have closed; selecting while candidates can still submit
// would make the ranked run non-reproducible.
func (a *Application) CanBeginSelection(cfg *IntakeConfiguration, now time.Time) error {
	if err := a.canApply(EventBeginSelection); err != nil {
		return err
	}
	if cfg != nil && !cfg.RegistrationClosedAt(now) {
		return dErrors.New(dErrors.CodeConfigurationClosed,
			"selection cannot begin before the registration window closes")
	}
	return nil
}

// ApplyBeginSelection transitions to selection and stamps selection_at.
func (a *Application) ApplyBeginSelection(now time.Time) {
	a.Status = StatusSelection
	a.SelectionAt = &now
	a.UpdatedAt = now
}

// CanAnnounce checks selection → announced. A total score must be present
// unless the pathway bypasses scoring.
func (a *Application) CanAnnounce(bypassScoring bool) error {
	if err := a.canApply(EventAnnounce); err != nil {
		return err
	}
	if a.TotalScore == nil && !bypassScoring {
		return dErrors.New(dErrors.CodeMissingScore,
			"cannot announce an application without a computed total score")
	}
	return nil
}

// ApplyAnnounce transitions to announced and stamps announced_at.
func (a *Application) ApplyAnnounce(now time.Time) {
	a.Status = StatusAnnounced
	a.AnnouncedAt = &now
	a.UpdatedAt = now
}

// CanAccept checks announced → accepted.
func (a *Application) CanAccept() error {
	return a.canApply(EventAccept)
}

// ApplyAccept transitions to accepted and stamps accepted_at.
func (a *Application) ApplyAccept(now time.Time) {
	a.Status = StatusAccepted
	a.AcceptedAt = &now
	a.UpdatedAt = now
}

// CanReject checks announced → rejected and requires a non-empty reason.
func (a *Application) CanReject(reason string) error {
	if err := a.canApply(EventReject); err != nil {
		return err
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "rejection requires a reason")
	}
	return nil
}

// ApplyReject transitions to rejected and captures the reason.
func (a *Application) ApplyReject(reason string, now time.Time) {
	a.Status = StatusRejected
	a.RejectionReason = reason
	a.UpdatedAt = now
}

// CanCancel checks that the application is in a non-terminal state.
func (a *Application) CanCancel() error {
	return a.canApply(EventCancel)
}

// ApplyCancel transitions to cancelled. Quota release is the service's job;
// the model only records the state.
func (a *Application) ApplyCancel(now time.Time) {
	a.Status = StatusCancelled
	a.UpdatedAt = now
}

// HoldsCapacity reports whether the application still counts against its
// (track, pathway) quota. Cancelled and rejected applications free their
// slot for later submissions in the same batch.
func (a *Application) HoldsCapacity() bool {
	return a.Status != StatusCancelled && a.Status != StatusRejected
}

// CanMarkPaid guards payment capture. Payments are accepted from
// registration onward; a cancelled or rejected application cannot pay.
func (a *Application) CanMarkPaid() error {
	if a.Status == StatusCancelled || a.Status == StatusRejected || a.Status == StatusPending {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"cannot record payment for a %s application", a.Status)
	}
	return nil
}

// ApplyPayment records the externally-confirmed payment.
func (a *Application) ApplyPayment(amount int64, now time.Time) {
	a.Paid = true
	a.PaymentAmount = amount
	a.PaymentDate = &now
	a.UpdatedAt = now
}

// SetDocumentStatus updates one document slot. Document verification is
// tracked independently of the application status.
func (a *Application) SetDocumentStatus(slot string, status DocumentStatus, now time.Time) error {
	if slot == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "document slot is required")
	}
	if !status.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown document status %q", status)
	}
	if a.Documents == nil {
		a.Documents = make(map[string]DocumentStatus)
	}
	a.Documents[slot] = status
	a.UpdatedAt = now
	return nil
}

// CanReRegister guards the accepted candidate's re-registration step.
func (a *Application) CanReRegister(cfg *IntakeConfiguration, now time.Time) error {
	if a.Status != StatusAccepted {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"only accepted applications can re-register (current: %s)", a.Status)
	}
	if cfg != nil && !cfg.ReRegistrationOpenAt(now) {
		return dErrors.New(dErrors.CodeConfigurationClosed, "re-registration window is not open")
	}
	return nil
}

// ApplyReRegister stamps the re-registration.
func (a *Application) ApplyReRegister(now time.Time) {
	a.ReRegisteredAt = &now
	a.UpdatedAt = now
}

// Clone returns a deep copy so memory stores never leak internal pointers.
func (a *Application) Clone() *Application {
	cp := *a
	cp.SelectionScore = clonePtr(a.SelectionScore)
	cp.InterviewScore = clonePtr(a.InterviewScore)
	cp.DocumentScore = clonePtr(a.DocumentScore)
	cp.TotalScore = clonePtr(a.TotalScore)
	cp.PaymentDate = clonePtr(a.PaymentDate)
	cp.RegisteredAt = clonePtr(a.RegisteredAt)
	cp.SelectionAt = clonePtr(a.SelectionAt)
	cp.AnnouncedAt = clonePtr(a.AnnouncedAt)
	cp.AcceptedAt = clonePtr(a.AcceptedAt)
	cp.ReRegisteredAt = clonePtr(a.ReRegisteredAt)
	if a.Documents != nil {
		cp.Documents = make(map[string]DocumentStatus, len(a.Documents))
		for k, v := range a.Documents {
			cp.Documents[k] = v
		}
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
