// Package server exposes the scanner over a small authenticated HTTP API so
// a run can be triggered and inspected remotely.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"duewatch/internal/domain"
	"duewatch/internal/scan"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   scan.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"dry_run must be a boolean"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the duewatch API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Duewatch API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerRuns(group, cfg.Engine)
	registerLedger(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e scan.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Scanner status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		count, err := e.Ledger.Count(ctx)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "storage_error", err.Error(), nil)
		}
		evts, err := e.Events.Latest(ctx, 10, "")
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "storage_error", err.Error(), nil)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			VaultPath:   e.Config.Vault.Path,
			LedgerCount: count,
			LastEvents:  evts,
		}}, nil
	})
}

func registerRuns(api huma.API, e scan.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "trigger-run",
		Method:        http.MethodPost,
		Path:          "/runs",
		Summary:       "Trigger one batch scan",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body RunRequest `json:"body"`
	}) (*struct {
		Body domain.RunReport `json:"body"`
	}, error) {
		report, err := e.Run(ctx, scan.RunOptions{DryRun: input.Body.DryRun})
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "run_failed", err.Error(), nil)
		}
		return &struct {
			Body domain.RunReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerLedger(api huma.API, e scan.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger",
		Summary:     "List delivery records",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.LedgerEntry `json:"body"`
	}, error) {
		entries, err := e.Ledger.List(ctx)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "storage_error", err.Error(), nil)
		}
		return &struct {
			Body []domain.LedgerEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-ledger",
		Method:      http.MethodDelete,
		Path:        "/ledger",
		Summary:     "Destroy and recreate the delivery ledger",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		if err := e.Ledger.Reset(ctx); err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "storage_error", err.Error(), nil)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"reset": true}}, nil
	})
}
