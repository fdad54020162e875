package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

func ptr(f float64) *float64 { return &f }

func sampleReport() *orchestrator.Report {
	return &orchestrator.Report{
		ID:       "r1",
		URL:      "https://example.com/",
		Profile:  "default",
		Duration: 1234 * time.Millisecond,
		Collectors: map[trace.CollectorID]orchestrator.CollectorStatus{
			trace.CollectTransfer: {Status: orchestrator.StatusOK, DurationMS: 900},
			trace.CollectServer:   {Status: orchestrator.StatusFailed, Error: "timeout", DurationMS: 15000},
		},
		Audits: map[string]audit.Result{
			"useshttp2":   {Meta: audit.ResultMeta{ID: "useshttp2", Title: "Uses HTTP/2", Category: audit.CategoryServer, Passed: true}, Score: ptr(1), ScoreDisplayMode: audit.ModeBinary},
			"greenserver": {Meta: audit.ResultMeta{ID: "greenserver", Title: "Green hosting", Category: audit.CategoryServer, SkipReason: "missing collector data"}, ScoreDisplayMode: audit.ModeSkip},
			"darkmode":    {Meta: audit.ResultMeta{ID: "darkmode", Title: "Offers dark mode", Category: audit.CategoryDesign}, Score: ptr(0), ScoreDisplayMode: audit.ModeBinary},
		},
		AuditOrder: []string{"useshttp2", "greenserver", "darkmode"},
		Categories: map[audit.Category]orchestrator.CategoryResult{
			audit.CategoryServer: {Name: audit.CategoryServer, Weight: 0.5, Score: 1, Scored: true, Audits: []string{"useshttp2"}, Skipped: []string{"greenserver"}},
			audit.CategoryDesign: {Name: audit.CategoryDesign, Weight: 0.5, Score: 0, Scored: true, Audits: []string{"darkmode"}},
		},
		Score: ptr(0.5),
	}
}

func TestReportSections(t *testing.T) {
	sections := reportSections(sampleReport(), config.DefaultProfile())
	if len(sections) != 3 {
		t.Fatalf("sections = %d; want 3", len(sections))
	}

	audits := sections[1]
	want := [][]string{
		{"useshttp2", "server", "100", "pass", "Uses HTTP/2"},
		{"greenserver", "server", "n/a", "skip", "Green hosting (missing collector data)"},
		{"darkmode", "design", "0", "fail", "Offers dark mode"},
	}
	for i, row := range want {
		if strings.Join(audits.Rows[i], "|") != strings.Join(row, "|") {
			t.Fatalf("audit row %d = %v; want %v", i, audits.Rows[i], row)
		}
	}

	for _, row := range sections[0].Rows {
		if row[0] == "server" && row[3] != "1 scored, 1 skipped" {
			t.Fatalf("server category row = %v", row)
		}
	}

	collectors := sections[2]
	if collectors.Rows[0][0] != "servercollect" || collectors.Rows[0][3] != "timeout" {
		t.Fatalf("collector rows = %v", collectors.Rows)
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, sampleReport(), config.DefaultProfile())

	out := buf.String()
	for _, want := range []string{"https://example.com/", "Score:", "50", "useshttp2", "Collectors"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatScore(t *testing.T) {
	if got := formatScore(0.876, true); got != "88" {
		t.Fatalf("formatScore() = %q", got)
	}
	if got := formatScore(0, false); got != "n/a" {
		t.Fatalf("formatScore(unscored) = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errScoreBelow); got != 2 {
		t.Fatalf("exitCode(score) = %d; want 2", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("exitCode(other) = %d; want 1", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"run", "serve", "probe"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}
