package models

import (
	"time"

	id "ppdb/pkg/domain"
	dErrors "ppdb/pkg/domain-errors"
)

// PathwayRule configures one admission route ("jalur"). Bypass flags are
// explicit configuration; they are never inferred from the pathway name.
type PathwayRule struct {
	Name string `json:"name"`
	// BypassQuota exempts the pathway from per-(track,pathway) quota
	// checks (batch-wide MaxApplications still applies).
	BypassQuota bool `json:"bypass_quota"`
	// BypassScoring lets the pathway be announced and admitted without a
	// computed total score (e.g. transfer placements).
	BypassScoring bool `json:"bypass_scoring"`
}

// QuotaRule caps admissible applications for one (track, pathway) pair.
type QuotaRule struct {
	Track   string `json:"track"`
	Pathway string `json:"pathway"`
	Limit   int    `json:"limit"`
}

// Admission policy names accepted in configuration.
const (
	PolicyRankedQuota = "ranked_quota"
	PolicyThreshold   = "threshold"
)

// IntakeConfiguration is one batch ("gelombang") of one tenant's admission
// cycle. Created by staff before the batch opens; immutable once
// applications reference it except for administrative correction; never
// hard-deleted while applications reference it.
type IntakeConfiguration struct {
	ID        id.BatchID
	TenantID  id.TenantID
	CycleYear int

	BatchLabel string // e.g. "Gelombang 1"
	BatchCode  string // e.g. "GEL01", derived from the label at creation

	RegistrationStart   time.Time
	RegistrationEnd     time.Time
	AnnouncementDate    time.Time
	ReRegistrationStart time.Time
	ReRegistrationEnd   time.Time

	Tracks   []string
	Pathways []PathwayRule
	Quotas   []QuotaRule

	// MaxApplications bounds the whole batch; 0 means unbounded.
	MaxApplications int
	FeeAmount       int64

	// AutoApprove announces bypass-scoring submissions immediately.
	AutoApprove bool
	Active      bool

	AdmissionPolicy string
	// ThresholdScore is the minimum total for PolicyThreshold.
	ThresholdScore float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces construction invariants.
func (c *IntakeConfiguration) Validate() error {
	if c.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if c.CycleYear < 2000 || c.CycleYear > 9999 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "cycle year %d out of range", c.CycleYear)
	}
	if c.BatchLabel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "batch label is required")
	}
	if !c.RegistrationEnd.After(c.RegistrationStart) {
		return dErrors.New(dErrors.CodeInvalidInput, "registration window must end after it starts")
	}
	if len(c.Tracks) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one track is required")
	}
	if len(c.Pathways) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one pathway is required")
	}
	switch c.AdmissionPolicy {
	case PolicyRankedQuota, PolicyThreshold:
	case "":
		return dErrors.New(dErrors.CodeInvalidInput, "admission policy is required")
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown admission policy %q", c.AdmissionPolicy)
	}
	for _, q := range c.Quotas {
		if q.Limit <= 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput,
				"quota for (%s, %s) must be positive", q.Track, q.Pathway)
		}
	}
	return nil
}

// HasTrack reports whether the track is offered in this batch.
func (c *IntakeConfiguration) HasTrack(track string) bool {
	for _, t := range c.Tracks {
		if t == track {
			return true
		}
	}
	return false
}

// PathwayRule returns the rule for a pathway, if configured.
func (c *IntakeConfiguration) PathwayRule(name string) (PathwayRule, bool) {
	for _, p := range c.Pathways {
		if p.Name == name {
			return p, true
		}
	}
	return PathwayRule{}, false
}

// QuotaFor returns the configured limit for a (track, pathway) pair.
// ok is false when no quota is configured, meaning capacity is bounded
// only by MaxApplications.
func (c *IntakeConfiguration) QuotaFor(track, pathway string) (limit int, ok bool) {
	for _, q := range c.Quotas {
		if q.Track == track && q.Pathway == pathway {
			return q.Limit, true
		}
	}
	return 0, false
}

// RegistrationOpenAt reports whether submissions are accepted at t.
func (c *IntakeConfiguration) RegistrationOpenAt(t time.Time) bool {
	return c.Active && !t.Before(c.RegistrationStart) && t.Before(c.RegistrationEnd)
}

// RegistrationClosedAt reports whether the registration window has ended.
func (c *IntakeConfiguration) RegistrationClosedAt(t time.Time) bool {
	return !t.Before(c.RegistrationEnd)
}

// ReRegistrationOpenAt reports whether accepted candidates may re-register.
func (c *IntakeConfiguration) ReRegistrationOpenAt(t time.Time) bool {
	if c.ReRegistrationStart.IsZero() || c.ReRegistrationEnd.IsZero() {
		return false
	}
	return !t.Before(c.ReRegistrationStart) && t.Before(c.ReRegistrationEnd)
}

// Clone returns a deep copy for memory stores.
func (c *IntakeConfiguration) Clone() *IntakeConfiguration {
	cp := *c
	cp.Tracks = append([]string(nil), c.Tracks...)
	cp.Pathways = append([]PathwayRule(nil), c.Pathways...)
	cp.Quotas = append([]QuotaRule(nil), c.Quotas...)
	return &cp
}
