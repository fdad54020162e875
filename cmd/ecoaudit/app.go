package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/ecoaudit/internal/browser"
	"github.com/dgnsrekt/ecoaudit/internal/cdp"
	"github.com/dgnsrekt/ecoaudit/internal/collect"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/controller"
	"github.com/dgnsrekt/ecoaudit/internal/notify"
	"github.com/dgnsrekt/ecoaudit/internal/snapshot"
	"github.com/dgnsrekt/ecoaudit/internal/storage"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
)

// app owns everything a command needs to run audits.
type app struct {
	cfg      *config.Config
	svc      *controller.Service
	profiles *config.ProfileHolder
	launcher *browser.Launcher
	browser  *cdp.Browser
	reports  *storage.WriterRegistry
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	shutdown, err := telemetry.InitTracer(ctx, "ecoaudit", cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	a.profiles = config.NewProfileHolder(profile)

	if cfg.LaunchBrowser {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			BinaryPath: cfg.ChromiumPath,
			Headless:   cfg.Headless,
		})
		if err := a.launcher.Launch(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	}

	shots, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create screenshot store: %w", err)
	}

	a.browser = cdp.NewBrowser(cfg.CDPURL())
	a.reports = storage.NewWriterRegistry(cfg.DataDir, "audit", 64, 50)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	opts := controller.Options{
		Profiles: a.profiles,
		Collectors: collect.All(collect.FromCDP(a.browser), collect.Options{
			GreenCheckURL: cfg.GreenCheckURL,
			HTTPClient:    httpClient,
			Store:         shots,
		}),
		Connection:       cfg.Connection(),
		CollectorTimeout: cfg.CollectorTimeout(),
		Metrics:          telemetry.NewMetrics(),
		Browser:          a.browser,
		Screenshots:      shots,
		Sink:             a.reports,
		CacheSize:        cfg.ReportCacheSize,
	}
	if cfg.WebhookURL != "" {
		opts.Notifier = notify.NewNotifier(cfg.WebhookURL, cfg.WebhookFormat, httpClient)
	}
	a.svc = controller.NewService(opts)

	slog.Info("ecoaudit config loaded",
		"cdp_url", cfg.CDPURL(),
		"launch_browser", cfg.LaunchBrowser,
		"profile", profile.Name,
		"device", cfg.Device,
		"location", cfg.Location,
		"data_dir", cfg.DataDir,
		"snapshot_dir", cfg.SnapshotDir,
		"tracing", cfg.Tracing,
		"webhook", cfg.WebhookURL != "",
	)
	return a, nil
}

// close flushes the report sink, detaches from the browser, stops a
// launched browser and flushes spans.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.reports != nil {
		errs = append(errs, a.reports.Close())
	}
	if a.browser != nil {
		errs = append(errs, a.browser.Close())
	}
	if a.launcher != nil {
		a.launcher.Stop()
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		slog.Debug("shutdown finished with errors", "error", err)
	}
}
