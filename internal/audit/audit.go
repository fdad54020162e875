// Package audit defines the contract every audit implements and the
// boundary that turns audit failures into skip results.
package audit

import (
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// Category groups audits that share one weight in the report.
type Category string

const (
	CategoryServer Category = "server"
	CategoryDesign Category = "design"
)

// DisplayMode tells consumers how to render a score.
type DisplayMode string

const (
	ModeBinary  DisplayMode = "binary"
	ModeNumeric DisplayMode = "numeric"
	ModeSkip    DisplayMode = "skip"
)

// Meta is the static description of an audit.
type Meta struct {
	ID           string
	Title        string
	FailureTitle string
	Description  string
	Category     Category
	// Collectors lists the snapshot blocks the audit reads.
	Collectors []trace.CollectorID
}

// Audit is implemented once per audit. Applicable and Compute must not
// modify the snapshot.
type Audit interface {
	Meta() Meta
	Applicable(s trace.Snapshot) bool
	Compute(s trace.Snapshot, env Env) (Outcome, error)
}

// Outcome is what Compute produces before titles are resolved.
type Outcome struct {
	Score   float64
	Mode    DisplayMode
	Details any
}

// Func adapts a pair of closures to the Audit interface.
type Func struct {
	Info         Meta
	ApplicableFn func(s trace.Snapshot) bool
	ComputeFn    func(s trace.Snapshot, env Env) (Outcome, error)
}

func (f Func) Meta() Meta { return f.Info }

func (f Func) Applicable(s trace.Snapshot) bool {
	if f.ApplicableFn == nil {
		return true
	}
	return f.ApplicableFn(s)
}

func (f Func) Compute(s trace.Snapshot, env Env) (Outcome, error) {
	return f.ComputeFn(s, env)
}

// ResultMeta is the resolved, per-run description of an audit.
type ResultMeta struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Passed      bool     `json:"passed"`
	Errored     bool     `json:"errored,omitempty"`
	SkipReason  string   `json:"skip_reason,omitempty"`
}

// Result is one audit's contribution to a report. Score is nil for skips.
type Result struct {
	Meta             ResultMeta  `json:"meta"`
	Score            *float64    `json:"score"`
	ScoreDisplayMode DisplayMode `json:"scoreDisplayMode"`
	ExtendedInfo     any         `json:"extendedInfo,omitempty"`
}

// Skipped reports whether the result is excluded from aggregation.
func (r Result) Skipped() bool {
	return r.ScoreDisplayMode == ModeSkip || r.Score == nil
}

// Value returns the score and whether one exists.
func (r Result) Value() (float64, bool) {
	if r.Skipped() {
		return 0, false
	}
	return *r.Score, true
}
