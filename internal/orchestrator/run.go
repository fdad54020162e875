package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

var errNoBlock = errors.New("collector returned no data")

type collected struct {
	id       trace.CollectorID
	block    trace.Block
	err      error
	duration time.Duration
}

// Run collects a snapshot of target, audits it and aggregates the scores.
// It returns ErrNoCollectorData when every collector failed.
func (r *Runner) Run(ctx context.Context, target Target) (*Report, error) {
	runID := uuid.NewString()
	started := time.Now()
	logger := slog.With("run", runID, "url", target.URL)

	ctx, span := telemetry.Tracer().Start(ctx, "audit.run", oteltrace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("url", target.URL),
	))
	defer span.End()

	m := &machine{}
	if r.onTransition != nil {
		m.hook = func(from, to State) { r.onTransition(runID, from, to) }
	}

	if err := m.to(Collecting); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Audit run started", "collectors", len(r.collectors), "audits", len(r.audits))
	outputs := r.collect(ctx, target)

	statuses := make(map[trace.CollectorID]CollectorStatus, len(outputs))
	blocks := make([]trace.Block, 0, len(outputs))
	for _, out := range outputs {
		st := CollectorStatus{Status: StatusOK, DurationMS: out.duration.Milliseconds()}
		if out.err != nil {
			st.Status = StatusFailed
			st.Error = out.err.Error()
			logger.WarnContext(ctx, "Collector failed", "collector", out.id, "error", out.err, "duration", out.duration)
		} else {
			blocks = append(blocks, out.block)
			logger.DebugContext(ctx, "Collector finished", "collector", out.id, "duration", out.duration)
		}
		statuses[out.id] = st
		r.metrics.CollectorsTotal.WithLabelValues(string(out.id), st.Status).Inc()
		r.metrics.CollectorDuration.WithLabelValues(string(out.id)).Observe(out.duration.Seconds())
	}

	if len(blocks) == 0 {
		if err := m.to(Terminal); err != nil {
			return nil, err
		}
		r.metrics.RunsTotal.WithLabelValues("no_data").Inc()
		err := ErrNoCollectorData
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ErrNoCollectorData, ctxErr)
		}
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "Audit run failed", "error", err)
		return nil, err
	}

	if err := m.to(Snapshotting); err != nil {
		return nil, err
	}
	snap := trace.NewSnapshot(target.URL, time.Now().UTC(), blocks...)
	gaps := 0
	if snap.Transfer != nil {
		gaps = snap.Transfer.Gaps
		r.metrics.CollectionGaps.Add(float64(gaps))
	}

	if err := m.to(Auditing); err != nil {
		return nil, err
	}
	results := r.runAudits(ctx, snap)

	if err := m.to(Aggregated); err != nil {
		return nil, err
	}
	categories, score := Aggregate(results, r.profile)

	report := &Report{
		ID:         runID,
		URL:        target.URL,
		Profile:    r.profile.Name,
		StartedAt:  started.UTC(),
		Duration:   time.Since(started),
		Collectors: statuses,
		Audits:     make(map[string]audit.Result, len(results)),
		AuditOrder: make([]string, 0, len(results)),
		Categories: categories,
		Score:      score,
		Gaps:       gaps,
		Screenshot: snap.Screenshot,
	}
	for _, res := range results {
		report.Audits[res.Meta.ID] = res
		report.AuditOrder = append(report.AuditOrder, res.Meta.ID)
	}

	if err := m.to(Terminal); err != nil {
		return nil, err
	}

	r.metrics.RunsTotal.WithLabelValues("ok").Inc()
	r.metrics.RunDuration.Observe(report.Duration.Seconds())
	for name, c := range categories {
		if c.Scored {
			r.metrics.LastScore.WithLabelValues(string(name)).Set(c.Score)
		}
	}
	if score != nil {
		r.metrics.LastScore.WithLabelValues("overall").Set(*score)
		span.SetAttributes(attribute.Float64("score", *score))
	}
	logger.InfoContext(ctx, "Audit run finished", "duration", report.Duration, "gaps", gaps, "score", report.ScoreValue())
	return report, nil
}

func (r *Runner) collect(ctx context.Context, target Target) []collected {
	out := make([]collected, len(r.collectors))
	var wg sync.WaitGroup
	for i, c := range r.collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			start := time.Now()
			block, err := r.runCollector(ctx, c, target)
			out[i] = collected{id: c.ID(), block: block, err: err, duration: time.Since(start)}
		}(i, c)
	}
	wg.Wait()
	return out
}

// runCollector waits for c until its deadline. A collector that ignores
// cancellation is abandoned; its late result is discarded.
func (r *Runner) runCollector(ctx context.Context, c Collector, target Target) (trace.Block, error) {
	timeout := r.timeout
	if tc, ok := c.(TimeoutCollector); ok && tc.Timeout() > 0 {
		timeout = tc.Timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "collector."+string(c.ID()))
	defer span.End()

	type result struct {
		block trace.Block
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("collector panic: %v", rec)}
			}
		}()
		block, err := c.Collect(ctx, target)
		done <- result{block: block, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// Past the deadline the collector is still draining; take its block
		// if it arrives within the grace window, else abandon it.
		grace := time.NewTimer(r.grace)
		defer grace.Stop()
		select {
		case res = <-done:
			if res.block != nil {
				slog.Warn("Collector returned after deadline", "collector", c.ID(), "error", ctx.Err())
			}
		case <-grace.C:
			res = result{err: fmt.Errorf("failed to collect %s: %w", c.ID(), ctx.Err())}
		}
	}

	switch {
	case res.err != nil:
	case res.block == nil:
		res.err = errNoBlock
	case res.block.Collector() != c.ID():
		res.err = fmt.Errorf("collector %s returned a %s block", c.ID(), res.block.Collector())
	}
	if res.err != nil {
		span.SetStatus(codes.Error, res.err.Error())
		return nil, res.err
	}
	return res.block, nil
}

// runAudits evaluates every audit in parallel. Results keep registry order.
func (r *Runner) runAudits(ctx context.Context, snap trace.Snapshot) []audit.Result {
	results := make([]audit.Result, len(r.audits))
	var wg sync.WaitGroup
	for i, a := range r.audits {
		wg.Add(1)
		go func(i int, a audit.Audit) {
			defer wg.Done()
			_, span := telemetry.Tracer().Start(ctx, "audit."+a.Meta().ID)
			defer span.End()
			results[i] = audit.Run(a, snap, r.env)
		}(i, a)
	}
	wg.Wait()

	for _, res := range results {
		outcome := "scored"
		switch {
		case res.Meta.Errored:
			outcome = "errored"
		case res.Skipped():
			outcome = "skipped"
		}
		r.metrics.AuditsTotal.WithLabelValues(res.Meta.ID, outcome).Inc()
	}
	return results
}
