package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const documentFontsJS = `(async () => {
	await document.fonts.ready;
	return Array.from(document.fonts).map(f => ({name: f.family, status: f.status}));
})()`

// Fonts lists the font faces the document declared and their load status.
type Fonts struct {
	browser Browser
}

func (c *Fonts) ID() trace.CollectorID { return trace.CollectFonts }

func (c *Fonts) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	return withPage(ctx, c.browser, trace.CollectFonts, target, nil, func(page Page) (trace.Block, error) {
		var raw []trace.Font
		if err := page.Evaluate(ctx, documentFontsJS, &raw); err != nil {
			return nil, fmt.Errorf("failed to list document fonts: %w", err)
		}
		return &trace.FontTraces{Fonts: dedupeFonts(raw)}, nil
	})
}

// dedupeFonts keeps one entry per family, preferring a loaded face, in
// first-seen order. Family names lose their CSS quotes.
func dedupeFonts(raw []trace.Font) []trace.Font {
	out := make([]trace.Font, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, f := range raw {
		f.Name = strings.Trim(strings.TrimSpace(f.Name), `"'`)
		if f.Name == "" {
			continue
		}
		key := strings.ToLower(f.Name)
		if i, ok := index[key]; ok {
			if f.Status == "loaded" {
				out[i].Status = f.Status
			}
			continue
		}
		index[key] = len(out)
		out = append(out, f)
	}
	return out
}
