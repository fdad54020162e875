package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/controller"
)

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type browserOutput struct {
		Body controller.BrowserStatus
	}
	huma.Register(api, huma.Operation{OperationID: "browser-status", Method: http.MethodGet, Path: "/api/v1/browser", Summary: "Probe the audit browser", Description: "Asks the browser for its version over the debugger websocket and lists pages currently opened by collectors.", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*browserOutput, error) {
			st, err := svc.BrowserStatus(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &browserOutput{Body: st}, nil
		})

	type profileOutput struct {
		Body *config.Profile
	}
	huma.Register(api, huma.Operation{OperationID: "get-profile", Method: http.MethodGet, Path: "/api/v1/profile", Summary: "Current scoring profile", Tags: []string{"Audits"}},
		func(ctx context.Context, input *struct{}) (*profileOutput, error) {
			return &profileOutput{Body: svc.Profile()}, nil
		})
}
