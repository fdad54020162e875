package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/ecoaudit/internal/controller"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
)

func registerAuditHandlers(api huma.API, svc Service) {
	type reportOutput struct {
		Body *orchestrator.Report
	}
	huma.Register(api, huma.Operation{
		OperationID:   "run-audit",
		Method:        http.MethodPost,
		Path:          "/api/v1/audits",
		Summary:       "Audit a page",
		Description:   "Loads the page in the browser, runs every collector and audit, and returns the scored report. The call blocks until the run finishes.",
		Tags:          []string{"Audits"},
		DefaultStatus: http.StatusCreated,
	},
		func(ctx context.Context, input *struct {
			Body struct {
				URL      string `json:"url" minLength:"1" doc:"Absolute http(s) URL of the page to audit" example:"https://example.com/"`
				Device   string `json:"device,omitempty" doc:"Device preset" enum:"desktop,desktop-4-3,laptop"`
				Location string `json:"location,omitempty" doc:"Location preset" enum:"seattle,barcelona,bangladesh,sydney"`
			}
		}) (*reportOutput, error) {
			report, err := svc.Run(ctx, controller.RunRequest{URL: input.Body.URL, Device: input.Body.Device, Location: input.Body.Location})
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: report}, nil
		})

	type listReportsOutput struct {
		Body struct {
			Reports []controller.ReportInfo `json:"reports"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-reports", Method: http.MethodGet, Path: "/api/v1/reports", Summary: "List recent reports", Tags: []string{"Audits"}},
		func(ctx context.Context, input *struct{}) (*listReportsOutput, error) {
			out := &listReportsOutput{}
			out.Body.Reports = svc.ListReports(ctx)
			if out.Body.Reports == nil {
				out.Body.Reports = []controller.ReportInfo{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-report", Method: http.MethodGet, Path: "/api/v1/reports/{report_id}", Summary: "Get a report", Tags: []string{"Audits"}},
		func(ctx context.Context, input *struct {
			ReportID string `path:"report_id"`
		}) (*reportOutput, error) {
			report, err := svc.GetReport(ctx, input.ReportID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: report}, nil
		})

	type imageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "get-screenshot", Method: http.MethodGet, Path: "/api/v1/screenshots/{screenshot_id}", Summary: "Get a screenshot image", Tags: []string{"Audits"}},
		func(ctx context.Context, input *struct {
			ScreenshotID string `path:"screenshot_id"`
		}) (*imageOutput, error) {
			data, format, err := svc.ReadScreenshot(ctx, input.ScreenshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &imageOutput{ContentType: "image/" + format, Body: data}, nil
		})
}
