package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer(t *testing.T) {
	for _, exporter := range []string{"", "none", "off"} {
		shutdown, err := InitTracer(context.Background(), "ecoaudit-test", exporter)
		require.NoError(t, err, exporter)
		assert.NoError(t, shutdown(context.Background()))
	}

	_, err := InitTracer(context.Background(), "ecoaudit-test", "zipkin")
	assert.Error(t, err)
}

func TestTraceHandlerAddsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "Inside span")
	span.End()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])

	buf.Reset()
	logger.Info("Outside span")
	assert.NotContains(t, buf.String(), "trace_id")
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("run", "r1")

	logger.Debug("Collector started")
	logger.Warn("Collector failed")

	assert.Contains(t, debug.String(), "Collector started")
	assert.Contains(t, debug.String(), "Collector failed")
	assert.NotContains(t, warn.String(), "Collector started")
	assert.Contains(t, warn.String(), "run=r1")

	broken := NewFanoutHandler(failingHandler{slog.NewTextHandler(&debug, nil)})
	err := broken.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "x", 0))
	assert.Error(t, err)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.CollectorsTotal.WithLabelValues("transfercollect", "ok").Inc()
	m.LastScore.WithLabelValues("overall").Set(0.75)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ecoaudit_runs_total{outcome="ok"} 1`)
	assert.Contains(t, body, `ecoaudit_last_score{category="overall"} 0.75`)
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.CollectionGaps.Add(3)
	m.AuditsTotal.WithLabelValues("darkmode", "scored").Inc()

	path := filepath.Join(t.TempDir(), "textfile", "ecoaudit.prom")
	require.NoError(t, WriteTextfile(m.Registry(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "ecoaudit_collection_gaps_total 3")
	assert.Contains(t, text, `ecoaudit_audit_results_total{audit="darkmode",outcome="scored"} 1`)
	assert.NotContains(t, text, "ecoaudit_collector_runs_total")
	assert.True(t, strings.HasPrefix(text, "# HELP"))
}

func TestPopulated(t *testing.T) {
	name := "x"
	mfs := []*dto.MetricFamily{{Name: &name}, {Name: &name, Metric: []*dto.Metric{{}}}}
	assert.Len(t, populated(mfs), 1)
}

type brokenGatherer struct{}

func (brokenGatherer) Gather() ([]*dto.MetricFamily, error) { return nil, errors.New("boom") }

func TestWriteTextfileGatherError(t *testing.T) {
	var g prometheus.Gatherer = brokenGatherer{}
	assert.Error(t, WriteTextfile(g, filepath.Join(t.TempDir(), "m.prom")))
}
