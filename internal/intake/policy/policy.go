// Package policy decides, at announcement time, which scored applications
// are admitted. The policy is chosen per batch configuration.
package policy

import (
	"ppdb/internal/intake/models"
	"ppdb/internal/intake/scoring"
	dErrors "ppdb/pkg/domain-errors"
)

// Outcome partitions a batch's candidates. Every input application lands in
// exactly one of the two slices.
type Outcome struct {
	Admitted []*models.Application
	Declined []*models.Application
}

// Pair identifies one (track, pathway) quota bucket.
type Pair struct {
	Track   string
	Pathway string
}

// Occupancy counts seats already held per pair, so repeated selection runs
// never admit past a quota. A nil map means no seats are taken.
type Occupancy map[Pair]int

// CountAdmitted tallies occupancy from applications that already hold a
// seat, announced or accepted in an earlier run.
func CountAdmitted(apps []*models.Application) Occupancy {
	taken := make(Occupancy)
	for _, app := range apps {
		switch app.Status {
		case models.StatusAnnounced, models.StatusAccepted:
			taken[Pair{Track: app.Track, Pathway: app.Pathway}]++
		}
	}
	return taken
}

// Policy decides admission for one batch's candidates.
type Policy interface {
	Name() string
	Decide(cfg *models.IntakeConfiguration, apps []*models.Application, taken Occupancy) Outcome
}

// ForConfiguration resolves the policy named in the batch configuration.
func ForConfiguration(cfg *models.IntakeConfiguration) (Policy, error) {
	switch cfg.AdmissionPolicy {
	case models.PolicyRankedQuota:
		return NewRankedQuota(), nil
	case models.PolicyThreshold:
		return NewThreshold(), nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"unknown admission policy %q", cfg.AdmissionPolicy)
	}
}

func bypassScoring(cfg *models.IntakeConfiguration, app *models.Application) bool {
	rule, ok := cfg.PathwayRule(app.Pathway)
	return ok && rule.BypassScoring
}

// RankedQuota admits the top-ranked applications per (track, pathway) up to
// that pair's remaining quota, after seats taken by earlier runs. Pairs
// without a quota admit every scored candidate. Candidates without a total
// score are declined unless their pathway bypasses scoring, in which case
// they are admitted outright.
type RankedQuota struct {
	engine *scoring.Engine
}

func NewRankedQuota() *RankedQuota {
	return &RankedQuota{engine: scoring.New()}
}

func (p *RankedQuota) Name() string { return models.PolicyRankedQuota }

func (p *RankedQuota) Decide(cfg *models.IntakeConfiguration, apps []*models.Application, taken Occupancy) Outcome {
	var out Outcome

	groups := make(map[Pair][]*models.Application)
	var order []Pair
	for _, app := range apps {
		if bypassScoring(cfg, app) {
			out.Admitted = append(out.Admitted, app)
			continue
		}
		if app.TotalScore == nil {
			out.Declined = append(out.Declined, app)
			continue
		}
		key := Pair{Track: app.Track, Pathway: app.Pathway}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], app)
	}

	for _, key := range order {
		group := groups[key]
		p.engine.Rank(group)

		cut := len(group)
		if limit, ok := cfg.QuotaFor(key.Track, key.Pathway); ok {
			remaining := limit - taken[key]
			if remaining < 0 {
				remaining = 0
			}
			if remaining < cut {
				cut = remaining
			}
		}
		out.Admitted = append(out.Admitted, group[:cut]...)
		out.Declined = append(out.Declined, group[cut:]...)
	}
	return out
}

// Threshold admits every candidate whose total score meets the configured
// minimum. Pathways that bypass scoring are admitted without a total. Seats
// taken by earlier runs do not limit a threshold batch.
type Threshold struct{}

func NewThreshold() *Threshold { return &Threshold{} }

func (p *Threshold) Name() string { return models.PolicyThreshold }

func (p *Threshold) Decide(cfg *models.IntakeConfiguration, apps []*models.Application, _ Occupancy) Outcome {
	var out Outcome
	for _, app := range apps {
		switch {
		case bypassScoring(cfg, app):
			out.Admitted = append(out.Admitted, app)
		case app.TotalScore != nil && *app.TotalScore >= cfg.ThresholdScore:
			out.Admitted = append(out.Admitted, app)
		default:
			out.Declined = append(out.Declined, app)
		}
	}
	return out
}
