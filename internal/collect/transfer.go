package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/ecoaudit/internal/capture"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const offscreenImagesJS = `(() => {
	const vh = window.innerHeight;
	return Array.from(document.images)
		.filter(img => (img.currentSrc || img.src) && img.getBoundingClientRect().top >= vh)
		.map(img => ({url: img.currentSrc || img.src, loading: img.getAttribute('loading') || ''}));
})()`

type offscreenImage struct {
	URL     string `json:"url"`
	Loading string `json:"loading"`
}

// Transfer records every network transaction of a page load, including the
// requests triggered by scrolling to the bottom.
type Transfer struct {
	browser Browser
	settle  time.Duration
}

func (c *Transfer) ID() trace.CollectorID { return trace.CollectTransfer }

func (c *Transfer) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	page, err := c.browser.NewPage(ctx, string(trace.CollectTransfer), target.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	streams := capture.NewStreams(256)
	corr := capture.NewCorrelator()
	consumed := make(chan error, 1)
	go func() { consumed <- corr.Consume(ctx, streams) }()

	tap := capture.NewNetworkTap(ctx, streams, page.ResponseBody)
	l := &transferListener{tap: tap, images: make(map[string]bool)}
	page.Listen(l.handle)

	navErr := page.Navigate(ctx, target.URL)
	var offscreen []offscreenImage
	var eager map[string]bool
	if navErr == nil {
		if err := page.Evaluate(ctx, offscreenImagesJS, &offscreen); err != nil {
			slog.Warn("Failed to list offscreen images", "url", target.URL, "error", err)
		}
		eager = l.startScrolling()
		if err := page.Scroll(ctx); err != nil {
			slog.Warn("Scroll failed", "url", target.URL, "error", err)
		}
		if err := settle(ctx, c.settle); err != nil {
			slog.Debug("Settle interrupted", "error", err)
		}
	}

	l.stop()
	tap.Wait()
	streams.Close()
	consumeErr := <-consumed
	records, gaps := corr.Drain()

	cut := ctx.Err() != nil
	if navErr != nil && !(cut && len(records) > 0) {
		return nil, navErr
	}
	if consumeErr != nil && !isDone(consumeErr) {
		return nil, fmt.Errorf("failed to correlate network events: %w", consumeErr)
	}
	if cut {
		slog.Warn("Transfer collection cut short", "url", target.URL, "records", len(records), "gaps", gaps, "error", ctx.Err())
	}

	out := &trace.TransferTraces{Records: records, Gaps: gaps, Cut: cut}
	for _, img := range offscreen {
		out.OffscreenImages = append(out.OffscreenImages, trace.OffscreenImage{
			URL:         img.URL,
			LoadingAttr: img.Loading,
			Eager:       eager[img.URL],
		})
	}
	slog.Debug("Transfer collected", "url", target.URL, "records", len(records), "gaps", gaps, "offscreen_images", len(offscreen))
	return out, nil
}

func isDone(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// transferListener feeds the tap until stopped and remembers which images
// were requested before scrolling began.
type transferListener struct {
	tap *capture.NetworkTap

	mu        sync.Mutex
	stopped   bool
	scrolling bool
	images    map[string]bool
}

func (l *transferListener) handle(ev any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if e, ok := ev.(*network.EventRequestWillBeSent); ok && !l.scrolling &&
		e.Type == network.ResourceTypeImage && e.Request != nil {
		l.images[e.Request.URL] = true
	}
	l.tap.Handle(ev)
}

// startScrolling returns the images requested so far.
func (l *transferListener) startScrolling() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scrolling = true
	out := make(map[string]bool, len(l.images))
	for u := range l.images {
		out[u] = true
	}
	return out
}

func (l *transferListener) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
}
