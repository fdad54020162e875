package orchestrator

import (
	"time"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type CollectorStatus struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// CategoryResult is the aggregate of one category. Score and Weighted are
// zero and Scored is false when no audit in the category produced a score.
type CategoryResult struct {
	Name        audit.Category `json:"name"`
	Description string         `json:"description,omitempty"`
	Weight      float64        `json:"weight"`
	Score       float64        `json:"score"`
	Weighted    float64        `json:"weighted_score"`
	Scored      bool           `json:"scored"`
	Audits      []string       `json:"audits"`
	Skipped     []string       `json:"skipped,omitempty"`
}

// Report is the outcome of one run.
type Report struct {
	ID         string                                `json:"id"`
	URL        string                                `json:"url"`
	Profile    string                                `json:"profile"`
	StartedAt  time.Time                             `json:"started_at"`
	Duration   time.Duration                         `json:"duration_ns"`
	Collectors map[trace.CollectorID]CollectorStatus `json:"collectors"`
	Audits     map[string]audit.Result               `json:"audits"`
	AuditOrder []string                              `json:"audit_order"`
	Categories map[audit.Category]CategoryResult     `json:"categories"`
	// Score is nil when no category scored.
	Score      *float64                 `json:"score"`
	Gaps       int                      `json:"gaps"`
	Screenshot *trace.ScreenshotTraces `json:"screenshot,omitempty"`
}

// ScoreValue returns the overall score, or -1 when there is none.
func (r *Report) ScoreValue() float64 {
	if r.Score == nil {
		return -1
	}
	return *r.Score
}

// Results returns audit results in registry order.
func (r *Report) Results() []audit.Result {
	out := make([]audit.Result, 0, len(r.AuditOrder))
	for _, id := range r.AuditOrder {
		out = append(out, r.Audits[id])
	}
	return out
}

// Aggregate computes each category's weighted mean over its scored audits
// and the overall weighted score. Skipped results are left out of both
// numerator and denominator. Categories that did not score are excluded from
// the overall mean; the overall score is nil when none scored.
func Aggregate(results []audit.Result, p *config.Profile) (map[audit.Category]CategoryResult, *float64) {
	type acc struct {
		sum, weights float64
	}
	sums := make(map[audit.Category]*acc, len(p.Categories))
	out := make(map[audit.Category]CategoryResult, len(p.Categories))
	for name, c := range p.Categories {
		sums[name] = &acc{}
		out[name] = CategoryResult{Name: name, Description: c.Description, Weight: c.Weight, Audits: []string{}}
	}

	for _, res := range results {
		cat, ok := out[res.Meta.Category]
		if !ok {
			continue
		}
		score, scored := res.Value()
		if !scored {
			cat.Skipped = append(cat.Skipped, res.Meta.ID)
			out[res.Meta.Category] = cat
			continue
		}
		w := p.AuditWeight(res.Meta.ID)
		sums[res.Meta.Category].sum += w * score
		sums[res.Meta.Category].weights += w
		cat.Audits = append(cat.Audits, res.Meta.ID)
		out[res.Meta.Category] = cat
	}

	var total, totalWeight float64
	for _, name := range p.CategoryNames() {
		cat, a := out[name], sums[name]
		if a.weights <= 0 {
			continue
		}
		cat.Score = a.sum / a.weights
		cat.Weighted = cat.Weight * cat.Score
		cat.Scored = true
		out[name] = cat
		total += cat.Weighted
		totalWeight += cat.Weight
	}

	if totalWeight <= 0 {
		return out, nil
	}
	overall := total / totalWeight
	return out, &overall
}
