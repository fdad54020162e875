package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

var (
	purple    = lipgloss.Color("99")
	gray      = lipgloss.Color("245")
	lightGray = lipgloss.Color("241")
	white     = lipgloss.Color("15")
	green     = lipgloss.Color("#06ffa5")
	red       = lipgloss.Color("203")
	amber     = lipgloss.Color("214")
)

type section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// formatScore renders a 0-1 score as 0-100, or "n/a".
func formatScore(score float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", score*100)
}

func outcome(r audit.Result) string {
	switch {
	case r.Meta.Errored:
		return "error"
	case r.Skipped():
		return "skip"
	case r.Meta.Passed:
		return "pass"
	default:
		return "fail"
	}
}

// reportSections lays out a report as summary, category and audit tables.
// Categories follow the profile order and audits follow registry order.
func reportSections(r *orchestrator.Report, p *config.Profile) []section {
	categories := section{Title: "Categories", Headers: []string{"CATEGORY", "WEIGHT", "SCORE", "AUDITS"}}
	for _, name := range p.CategoryNames() {
		c, ok := r.Categories[name]
		if !ok {
			continue
		}
		categories.Rows = append(categories.Rows, []string{
			string(name),
			fmt.Sprintf("%.2f", c.Weight),
			formatScore(c.Score, c.Scored),
			fmt.Sprintf("%d scored, %d skipped", len(c.Audits), len(c.Skipped)),
		})
	}

	audits := section{Title: "Audits", Headers: []string{"AUDIT", "CATEGORY", "SCORE", "RESULT", "TITLE"}}
	for _, res := range r.Results() {
		score, ok := res.Value()
		title := res.Meta.Title
		if res.Meta.SkipReason != "" {
			title += " (" + res.Meta.SkipReason + ")"
		}
		audits.Rows = append(audits.Rows, []string{
			res.Meta.ID, string(res.Meta.Category), formatScore(score, ok), outcome(res), title,
		})
	}

	collectors := section{Title: "Collectors", Headers: []string{"COLLECTOR", "STATUS", "DURATION", "ERROR"}}
	ids := make([]string, 0, len(r.Collectors))
	for id := range r.Collectors {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := r.Collectors[trace.CollectorID(id)]
		collectors.Rows = append(collectors.Rows, []string{id, st.Status, fmt.Sprintf("%dms", st.DurationMS), st.Error})
	}

	return []section{categories, audits, collectors}
}

func printReport(w io.Writer, r *orchestrator.Report, p *config.Profile) {
	printKV(w,
		"URL", r.URL,
		"Score", formatScore(r.ScoreValue(), r.Score != nil),
		"Profile", r.Profile,
		"Duration", r.Duration.Round(time.Millisecond).String(),
		"Gaps", fmt.Sprint(r.Gaps),
	)
	_, _ = fmt.Fprintln(w)
	printStyledTable(w, reportSections(r, p))
}

func printStyledTable(w io.Writer, sections []section) {
	re := lipgloss.NewRenderer(w)

	var (
		headerStyle  = re.NewStyle().Foreground(white).Bold(true).Align(lipgloss.Center)
		cellStyle    = re.NewStyle().PaddingLeft(1).PaddingRight(1)
		oddRowStyle  = cellStyle.Foreground(gray)
		evenRowStyle = cellStyle.Foreground(lightGray)
		borderStyle  = re.NewStyle().Foreground(purple)
		titleStyle   = re.NewStyle().Bold(true).Foreground(purple).PaddingLeft(2).PaddingTop(1)
		paddingStyle = re.NewStyle().Padding(0, 2)
	)
	resultStyles := map[string]lipgloss.Style{
		"pass":  cellStyle.Foreground(green),
		"fail":  cellStyle.Foreground(red),
		"error": cellStyle.Foreground(red).Bold(true),
		"skip":  cellStyle.Foreground(amber),
		"ok":    cellStyle.Foreground(green),
	}

	for _, s := range sections {
		if len(s.Rows) == 0 {
			continue
		}
		_, _ = fmt.Fprintln(w, titleStyle.Render(s.Title)+":")

		rows := s.Rows
		t := table.New().
			Border(lipgloss.ThickBorder()).
			BorderStyle(borderStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if row >= 0 && row < len(rows) && col < len(rows[row]) {
					if st, ok := resultStyles[rows[row][col]]; ok {
						return st
					}
				}
				if row%2 == 0 {
					return evenRowStyle
				}
				return oddRowStyle
			}).
			Headers(s.Headers...).
			Rows(rows...)

		_, _ = fmt.Fprintln(w, paddingStyle.Render(t.String()))
	}
}

// printKV prints labeled values on one indented line.
func printKV(w io.Writer, pairs ...string) {
	re := lipgloss.NewRenderer(w)
	label := re.NewStyle().Bold(true).Foreground(purple)
	value := re.NewStyle().Foreground(green)

	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, label.Render(pairs[i]+":")+" "+value.Render(pairs[i+1]))
	}
	_, _ = fmt.Fprint(w, "  "+strings.Join(parts, "   "))
}
