package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/controller"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
)

type Service interface {
	Run(ctx context.Context, req controller.RunRequest) (*orchestrator.Report, error)
	ListReports(ctx context.Context) []controller.ReportInfo
	GetReport(ctx context.Context, id string) (*orchestrator.Report, error)
	ReadScreenshot(ctx context.Context, id string) ([]byte, string, error)
	BrowserStatus(ctx context.Context) (controller.BrowserStatus, error)
	Profile() *config.Profile
	Metrics() *telemetry.Metrics
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("ecoaudit API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Method(http.MethodGet, "/metrics", svc.Metrics().Handler())

	registerHealthHandlers(api, svc)
	registerAuditHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeCollectionFailed:
			return huma.Error502BadGateway(coded.Message)
		case controller.CodeBrowserUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
