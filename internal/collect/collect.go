// Package collect implements the browser-backed collectors that produce the
// side-channel blocks of a trace snapshot.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/ecoaudit/internal/cdp"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/snapshot"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const defaultSettle = 500 * time.Millisecond

// Page is the subset of a browser tab the collectors drive.
type Page interface {
	Listen(fn func(ev any))
	Navigate(ctx context.Context, url string) error
	Scroll(ctx context.Context) error
	Evaluate(ctx context.Context, js string, out any) error
	ResponseBody(ctx context.Context, id network.RequestID) ([]byte, error)
	EnableStylesheets(ctx context.Context) error
	StylesheetText(ctx context.Context, id css.StyleSheetID) (string, error)
	EmulateColorScheme(ctx context.Context, scheme string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close()
}

// Browser opens emulated pages.
type Browser interface {
	NewPage(ctx context.Context, owner string, conn config.Connection) (Page, error)
}

// ScreenshotStore persists screenshot artifacts.
type ScreenshotStore interface {
	Save(meta snapshot.ScreenshotMeta, image []byte) (snapshot.ScreenshotMeta, error)
}

type cdpBrowser struct {
	b *cdp.Browser
}

// FromCDP adapts a connected CDP browser.
func FromCDP(b *cdp.Browser) Browser {
	return cdpBrowser{b: b}
}

func (c cdpBrowser) NewPage(ctx context.Context, owner string, conn config.Connection) (Page, error) {
	p, err := c.b.NewPage(ctx, owner, conn)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures the collector set.
type Options struct {
	GreenCheckURL string
	HTTPClient    *http.Client
	Store         ScreenshotStore
	// Settle is how long a collector keeps listening after the page has
	// loaded, for late requests and console output.
	Settle time.Duration
}

// All returns every collector, in snapshot block order.
func All(b Browser, opts Options) []orchestrator.Collector {
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	return []orchestrator.Collector{
		&Transfer{browser: b, settle: opts.Settle},
		NewServer(opts.GreenCheckURL, opts.HTTPClient),
		&Screenshot{browser: b, store: opts.Store, panel: DefaultPanel()},
		&CSS{browser: b},
		&Fonts{browser: b},
		&Console{browser: b, settle: opts.Settle},
		&Animations{browser: b},
	}
}

// withPage opens a page for id, loads the target and hands the page to fn.
// before runs after the page opens and before navigation.
func withPage(ctx context.Context, b Browser, id trace.CollectorID, target orchestrator.Target, before func(Page) error, fn func(Page) (trace.Block, error)) (trace.Block, error) {
	page, err := b.NewPage(ctx, string(id), target.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if before != nil {
		if err := before(page); err != nil {
			return nil, err
		}
	}
	if err := page.Navigate(ctx, target.URL); err != nil {
		return nil, err
	}
	slog.Debug("Page loaded", "collector", id, "url", target.URL)
	return fn(page)
}

func settle(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
