package audit

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const (
	ReasonNotApplicable = "not applicable"
	ReasonMissingData   = "missing collector data"
)

// Run executes a against s. Missing blocks and a false Applicable both yield
// a skip. Errors and panics from Compute are logged and yield an errored
// skip, so callers never see them.
func Run(a Audit, s trace.Snapshot, env Env) (res Result) {
	meta := a.Meta()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			slog.Error("Audit panicked", "audit", meta.ID, "error", err)
			res = Errored(meta, err)
		}
	}()

	for _, id := range meta.Collectors {
		if !s.Has(id) {
			slog.Debug("Audit skipped", "audit", meta.ID, "missing", id)
			return Skip(meta, ReasonMissingData)
		}
	}

	if !a.Applicable(s) {
		slog.Debug("Audit not applicable", "audit", meta.ID)
		return Skip(meta, ReasonNotApplicable)
	}

	out, err := a.Compute(s, env)
	if err != nil {
		slog.Warn("Audit failed", "audit", meta.ID, "error", err)
		return Errored(meta, err)
	}
	if out.Mode == ModeSkip {
		return Skip(meta, ReasonNotApplicable)
	}
	if math.IsNaN(out.Score) || out.Score < 0 || out.Score > 1 {
		err := fmt.Errorf("score %v outside [0,1]", out.Score)
		slog.Warn("Audit failed", "audit", meta.ID, "error", err)
		return Errored(meta, err)
	}

	return Scored(meta, out, env.Thresholds)
}

// Scored builds a scored result, choosing the title by threshold.
func Scored(meta Meta, out Outcome, th Thresholds) Result {
	mode := out.Mode
	if mode == "" {
		mode = ModeNumeric
	}
	passed := th.Passed(out.Score, mode)
	title := meta.Title
	if !passed && meta.FailureTitle != "" {
		title = meta.FailureTitle
	}
	score := out.Score
	return Result{
		Meta: ResultMeta{
			ID:          meta.ID,
			Title:       title,
			Description: meta.Description,
			Category:    meta.Category,
			Passed:      passed,
		},
		Score:            &score,
		ScoreDisplayMode: mode,
		ExtendedInfo:     out.Details,
	}
}

// Skip builds a result that is excluded from aggregation.
func Skip(meta Meta, reason string) Result {
	return Result{
		Meta: ResultMeta{
			ID:          meta.ID,
			Title:       meta.Title,
			Description: meta.Description,
			Category:    meta.Category,
			SkipReason:  reason,
		},
		ScoreDisplayMode: ModeSkip,
	}
}

// Errored builds a skip carrying the errored marker.
func Errored(meta Meta, err error) Result {
	r := Skip(meta, err.Error())
	r.Meta.Errored = true
	return r
}
