package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/ecoaudit/internal/config"
)

// ErrNotConnected is returned when a page is requested before Connect.
var ErrNotConnected = errors.New("browser not connected")

// Browser manages the DevTools connection and the pages opened on it.
type Browser struct {
	cdpURL string
	pages  *PageRegistry

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowser(cdpURL string) *Browser {
	return &Browser{cdpURL: cdpURL, pages: NewPageRegistry()}
}

func (b *Browser) URL() string { return b.cdpURL }

// Connect attaches to the browser at the configured endpoint. It is a no-op
// when already connected.
func (b *Browser) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		return nil
	}

	slog.Info("Connecting to Chromium", "url", b.cdpURL)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), b.cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	slog.Info("Connected to Chromium", "url", b.cdpURL)
	return nil
}

// Connected reports whether Connect succeeded and Close was not called.
func (b *Browser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.browserCtx != nil && b.browserCtx.Err() == nil
}

// NewPage opens a fresh tab emulating the device and location of conn. The
// tab is closed when ctx is done or Close is called, whichever comes first.
func (b *Browser) NewPage(ctx context.Context, owner string, conn config.Connection) (*Page, error) {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()
	if browserCtx == nil {
		return nil, ErrNotConnected
	}

	pageCtx, cancel := chromedp.NewContext(browserCtx)
	p := &Page{ctx: pageCtx, conn: conn, registry: b.pages}
	p.stop = context.AfterFunc(ctx, cancel)
	p.cancel = cancel

	if err := chromedp.Run(pageCtx, setupActions(conn)); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	if c := chromedp.FromContext(pageCtx); c != nil && c.Target != nil {
		p.targetID = c.Target.TargetID
		b.pages.Register(p.targetID, owner)
	}
	slog.Debug("Opened page", "owner", owner, "target_id", p.targetID, "device", conn.Device.Name)
	return p, nil
}

// Pages lists the pages currently open.
func (b *Browser) Pages() []PageInfo {
	return b.pages.List()
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx, b.browserCancel, b.allocCancel = nil, nil, nil
	slog.Info("CDP client closed")
	return nil
}

func setupActions(conn config.Connection) chromedp.Tasks {
	d, loc := conn.Device, conn.Location
	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetCacheDisabled(true),
		emulation.SetDeviceMetricsOverride(d.Width, d.Height, d.DeviceScaleFactor, d.Mobile),
		emulation.SetGeolocationOverride().
			WithLatitude(loc.Latitude).
			WithLongitude(loc.Longitude).
			WithAccuracy(loc.Accuracy),
	}
	if d.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(d.UserAgent))
	}
	return tasks
}

// Page is one emulated browser tab.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	stop     func() bool
	conn     config.Connection
	targetID target.ID
	registry *PageRegistry

	closeOnce sync.Once
}

func (p *Page) Connection() config.Connection { return p.conn }

// Listen registers fn for every protocol event of the tab.
func (p *Page) Listen(fn func(ev any)) {
	chromedp.ListenTarget(p.ctx, fn)
}

// Run executes actions on the tab, bounded by ctx.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the load event. A page that is still
// loading after the connection's navigation limit is audited as it stands.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.conn.MaxNavigation)
	defer cancel()

	p.registry.SetURL(p.targetID, url)
	err := p.Run(navCtx, chromedp.Navigate(url))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("Navigation timed out, continuing", "url", url, "limit", p.conn.MaxNavigation)
		return nil
	default:
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
}

const scrollStepJS = `(() => {
	window.scrollBy(0, window.innerHeight);
	const el = document.scrollingElement || document.documentElement;
	return window.scrollY + window.innerHeight >= el.scrollHeight;
})()`

// Scroll walks the page to the bottom one viewport at a time, pausing the
// connection's scroll interval between steps and giving up after MaxScroll.
func (p *Page) Scroll(ctx context.Context) error {
	deadline := time.Now().Add(p.conn.MaxScroll)
	for time.Now().Before(deadline) {
		var bottom bool
		if err := p.Evaluate(ctx, scrollStepJS, &bottom); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}
		if bottom {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.conn.MaxScrollInterval):
		}
	}
	slog.Debug("Scroll limit reached", "limit", p.conn.MaxScroll)
	return nil
}

// Evaluate runs js in the page and decodes its result into out. Promises
// are awaited.
func (p *Page) Evaluate(ctx context.Context, js string, out any) error {
	return p.Run(ctx, chromedp.Evaluate(js, out, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
}

// ResponseBody reads the decoded body of a finished request.
func (p *Page) ResponseBody(ctx context.Context, id network.RequestID) ([]byte, error) {
	var body []byte
	err := p.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	return body, err
}

// EnableStylesheets turns on the CSS domain so the tab reports every
// stylesheet it parses.
func (p *Page) EnableStylesheets(ctx context.Context) error {
	return p.Run(ctx, dom.Enable(), css.Enable())
}

// StylesheetText returns the source of a stylesheet reported by the CSS domain.
func (p *Page) StylesheetText(ctx context.Context, id css.StyleSheetID) (string, error) {
	var text string
	err := p.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		text, err = css.GetStyleSheetText(id).Do(ctx)
		return err
	}))
	return text, err
}

// EmulateColorScheme sets the prefers-color-scheme media feature.
func (p *Page) EmulateColorScheme(ctx context.Context, scheme string) error {
	return p.Run(ctx, emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
		{Name: "prefers-color-scheme", Value: scheme},
	}))
}

// Screenshot captures the visible viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.stop()
		p.cancel()
		if p.targetID != "" {
			p.registry.Remove(p.targetID)
		}
	})
}
