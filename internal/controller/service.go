package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dgnsrekt/ecoaudit/internal/cdp"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/notify"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/snapshot"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
)

// ReportStream is the JSONL stream finished reports are appended to.
const ReportStream = "reports"

const notifyTimeout = 10 * time.Second

// Browser is the part of the CDP session the service needs.
type Browser interface {
	Connect(ctx context.Context) error
	URL() string
	Pages() []cdp.PageInfo
}

// ReportSink persists finished reports.
type ReportSink interface {
	Append(pageURL, stream string, record any) error
}

// Notifier is told about every finished report.
type Notifier interface {
	Notify(ctx context.Context, s notify.Summary) error
}

// Screenshots is the read side of the screenshot store.
type Screenshots interface {
	Get(id string) (snapshot.ScreenshotMeta, error)
	ReadImage(id string) ([]byte, string, error)
}

// Options wires the service. Only Profiles and Collectors are required.
type Options struct {
	Profiles         *config.ProfileHolder
	Collectors       []orchestrator.Collector
	Connection       config.Connection
	CollectorTimeout time.Duration
	Metrics          *telemetry.Metrics
	Browser          Browser
	Screenshots      Screenshots
	Sink             ReportSink
	Notifier         Notifier
	CacheSize        int
}

// Service runs audits and serves their reports.
type Service struct {
	profiles   *config.ProfileHolder
	collectors []orchestrator.Collector
	conn       config.Connection
	timeout    time.Duration
	metrics    *telemetry.Metrics
	browser    Browser
	shots      Screenshots
	sink       ReportSink
	notifier   Notifier
	reports    *reportCache

	probe    func(ctx context.Context, httpBase string) (cdp.Version, error)
	validate *validator.Validate
}

func NewService(opts Options) *Service {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = config.NewProfileHolder(config.DefaultProfile())
	}
	conn := opts.Connection
	if conn.Device.Width == 0 {
		conn = config.DefaultConnection()
	}
	return &Service{
		profiles:   profiles,
		collectors: opts.Collectors,
		conn:       conn,
		timeout:    opts.CollectorTimeout,
		metrics:    metrics,
		browser:    opts.Browser,
		shots:      opts.Screenshots,
		sink:       opts.Sink,
		notifier:   opts.Notifier,
		reports:    newReportCache(opts.CacheSize),
		probe:      cdp.Probe,
		validate:   validator.New(),
	}
}

// RunRequest asks for one audit run. Device and Location name presets and
// fall back to the service's connection settings when empty.
type RunRequest struct {
	URL      string `json:"url" validate:"required,http_url"`
	Device   string `json:"device,omitempty"`
	Location string `json:"location,omitempty"`
}

// Metrics returns the service's metric set.
func (s *Service) Metrics() *telemetry.Metrics { return s.metrics }

// Profile returns the profile the next run will use.
func (s *Service) Profile() *config.Profile { return s.profiles.Load() }

func (s *Service) target(req RunRequest) (orchestrator.Target, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validate.Struct(req); err != nil {
		return orchestrator.Target{}, newError(CodeValidation, "url must be an absolute http(s) URL", err)
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Hostname() == "" {
		return orchestrator.Target{}, newError(CodeValidation, "url must have a host", err)
	}

	conn := s.conn
	if name := strings.ToLower(strings.TrimSpace(req.Device)); name != "" {
		d, ok := config.Devices[name]
		if !ok {
			return orchestrator.Target{}, newError(CodeValidation, fmt.Sprintf("unknown device %q", req.Device), nil)
		}
		conn.Device = d
	}
	if name := strings.ToLower(strings.TrimSpace(req.Location)); name != "" {
		l, ok := config.Locations[name]
		if !ok {
			return orchestrator.Target{}, newError(CodeValidation, fmt.Sprintf("unknown location %q", req.Location), nil)
		}
		conn.Location = l
	}
	return orchestrator.Target{URL: u.String(), Settings: conn}, nil
}

// Run audits one page with the current profile. The report is cached,
// appended to the sink and announced to the notifier; sink and notifier
// failures are logged and do not fail the run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*orchestrator.Report, error) {
	target, err := s.target(req)
	if err != nil {
		return nil, err
	}

	if s.browser != nil {
		if err := s.browser.Connect(ctx); err != nil {
			return nil, newError(CodeBrowserUnavailable, "connect to browser", err)
		}
	}

	runner, err := orchestrator.New(orchestrator.Options{
		Profile:          s.profiles.Load(),
		Collectors:       s.collectors,
		CollectorTimeout: s.timeout,
		Metrics:          s.metrics,
		OnTransition: func(runID string, from, to orchestrator.State) {
			slog.Debug("Run state changed", "run", runID, "from", from, "to", to)
		},
	})
	if err != nil {
		return nil, newError(CodeInternal, "build runner", err)
	}

	report, err := runner.Run(ctx, target)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoCollectorData) {
			return nil, newError(CodeCollectionFailed, "no collector produced data for "+target.URL, err)
		}
		return nil, newError(CodeInternal, "audit run", err)
	}

	s.reports.add(report)
	s.record(ctx, report)
	return report, nil
}

func (s *Service) record(ctx context.Context, report *orchestrator.Report) {
	if s.sink != nil {
		if err := s.sink.Append(report.URL, ReportStream, report); err != nil {
			slog.Warn("Failed to persist report", "report", report.ID, "error", err)
		}
	}
	if s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, notify.SummaryOf(report)); err != nil {
			slog.Warn("Failed to send report notification", "report", report.ID, "error", err)
		}
	}
}

// ReportInfo is the listing entry of a cached report.
type ReportInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Profile   string    `json:"profile"`
	StartedAt time.Time `json:"started_at"`
	Score     *float64  `json:"score"`
}

// ListReports returns the cached reports, most recent first.
func (s *Service) ListReports(ctx context.Context) []ReportInfo {
	cached := s.reports.newest()
	out := make([]ReportInfo, 0, len(cached))
	for _, r := range cached {
		out = append(out, ReportInfo{ID: r.ID, URL: r.URL, Profile: r.Profile, StartedAt: r.StartedAt, Score: r.Score})
	}
	return out
}

func (s *Service) GetReport(ctx context.Context, id string) (*orchestrator.Report, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newError(CodeValidation, "report_id is required", nil)
	}
	r, ok := s.reports.get(id)
	if !ok {
		return nil, newError(CodeNotFound, "report "+id+" not found", nil)
	}
	return r, nil
}

// ReadScreenshot returns the image bytes and format of a stored screenshot.
func (s *Service) ReadScreenshot(ctx context.Context, id string) ([]byte, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", newError(CodeValidation, "screenshot_id is required", nil)
	}
	if s.shots == nil {
		return nil, "", newError(CodeNotFound, "screenshots are not stored", nil)
	}
	data, format, err := s.shots.ReadImage(id)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return nil, "", newError(CodeNotFound, "screenshot "+id+" not found", err)
		case errors.Is(err, snapshot.ErrInvalidID):
			return nil, "", newError(CodeValidation, "screenshot_id must be a uuid", err)
		}
		return nil, "", newError(CodeInternal, "read screenshot", err)
	}
	return data, format, nil
}

// BrowserStatus describes the connected browser.
type BrowserStatus struct {
	Endpoint string         `json:"endpoint"`
	Version  cdp.Version    `json:"version"`
	Pages    []cdp.PageInfo `json:"pages"`
}

// BrowserStatus probes the debugger endpoint and lists the pages currently
// opened by collectors.
func (s *Service) BrowserStatus(ctx context.Context) (BrowserStatus, error) {
	if s.browser == nil {
		return BrowserStatus{}, newError(CodeBrowserUnavailable, "no browser configured", nil)
	}
	v, err := s.probe(ctx, s.browser.URL())
	if err != nil {
		return BrowserStatus{}, newError(CodeBrowserUnavailable, "probe "+s.browser.URL(), err)
	}
	pages := s.browser.Pages()
	if pages == nil {
		pages = []cdp.PageInfo{}
	}
	return BrowserStatus{Endpoint: s.browser.URL(), Version: v, Pages: pages}, nil
}
