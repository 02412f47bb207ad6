// Package scoring aggregates the three sub-scores into a ranking total and
// owns the ordering used by selection runs.
package scoring

import (
	"math"
	"sort"

	"ppdb/internal/intake/models"
	dErrors "ppdb/pkg/domain-errors"
)

// Engine is stateless; all score state lives on the application.
type Engine struct{}

func New() *Engine { return &Engine{} }

// RecordSubscore writes one bounded sub-score and recomputes the total.
// A previously recorded sub-score is overwritten, never silently dropped:
// the recompute always folds in every sub-score currently present.
func (e *Engine) RecordSubscore(app *models.Application, kind models.ScoreKind, value float64) error {
	if !kind.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown score kind %q", kind)
	}
	if value < 0 || value > 100 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "score %v out of range 0-100", value)
	}

	v := value
	switch kind {
	case models.ScoreSelection:
		app.SelectionScore = &v
	case models.ScoreInterview:
		app.InterviewScore = &v
	case models.ScoreDocument:
		app.DocumentScore = &v
	}

	app.TotalScore = e.ComputeTotal(app)
	return nil
}

// ComputeTotal returns the arithmetic mean of whichever sub-scores are
// present, rounded to two decimals, or nil when none are recorded.
func (e *Engine) ComputeTotal(app *models.Application) *float64 {
	var sum float64
	var n int
	for _, s := range []*float64{app.SelectionScore, app.InterviewScore, app.DocumentScore} {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	total := math.Round(sum/float64(n)*100) / 100
	return &total
}

// Rank orders applications for a selection run: descending by total score,
// ties broken by earliest registered_at. The sort is stable and the tie
// break total, so repeated runs over the same set produce the same order.
// Applications without a total sort last.
func (e *Engine) Rank(apps []*models.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		a, b := apps[i], apps[j]
		switch {
		case a.TotalScore == nil && b.TotalScore == nil:
			return earlierRegistration(a, b)
		case a.TotalScore == nil:
			return false
		case b.TotalScore == nil:
			return true
		case *a.TotalScore != *b.TotalScore:
			return *a.TotalScore > *b.TotalScore
		default:
			return earlierRegistration(a, b)
		}
	})
}

func earlierRegistration(a, b *models.Application) bool {
	switch {
	case a.RegisteredAt == nil && b.RegisteredAt == nil:
		// Registration order is also encoded in the sequence.
		return a.Sequence < b.Sequence
	case a.RegisteredAt == nil:
		return false
	case b.RegisteredAt == nil:
		return true
	case !a.RegisteredAt.Equal(*b.RegisteredAt):
		return a.RegisteredAt.Before(*b.RegisteredAt)
	default:
		return a.Sequence < b.Sequence
	}
}
