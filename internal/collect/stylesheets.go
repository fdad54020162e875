package collect

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/css"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// CSS gathers the source text of every stylesheet the page parses.
type CSS struct {
	browser Browser
}

func (c *CSS) ID() trace.CollectorID { return trace.CollectCSS }

func (c *CSS) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	var (
		mu      sync.Mutex
		headers []*css.StyleSheetHeader
		seen    = make(map[css.StyleSheetID]bool)
	)
	before := func(page Page) error {
		page.Listen(func(ev any) {
			e, ok := ev.(*css.EventStyleSheetAdded)
			if !ok || e.Header == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !seen[e.Header.StyleSheetID] {
				seen[e.Header.StyleSheetID] = true
				headers = append(headers, e.Header)
			}
		})
		return page.EnableStylesheets(ctx)
	}

	return withPage(ctx, c.browser, trace.CollectCSS, target, before, func(page Page) (trace.Block, error) {
		mu.Lock()
		pending := append([]*css.StyleSheetHeader(nil), headers...)
		mu.Unlock()

		out := &trace.CSSTraces{Sheets: make([]trace.Stylesheet, 0, len(pending))}
		for _, h := range pending {
			text, err := page.StylesheetText(ctx, h.StyleSheetID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Debug("Failed to read stylesheet", "id", h.StyleSheetID, "url", h.SourceURL, "error", err)
				continue
			}
			sheetURL := h.SourceURL
			if sheetURL == "" || h.IsInline {
				sheetURL = target.URL
			}
			out.Sheets = append(out.Sheets, trace.Stylesheet{URL: sheetURL, Text: text})
		}
		return out, nil
	})
}
