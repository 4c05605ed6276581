package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Beni-V/text2sql/internal/auth"
	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/query"
	"github.com/Beni-V/text2sql/internal/text2sql"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

type ReadinessCheck func(ctx context.Context) error

// Text2SQL is the service surface the handlers call. *text2sql.Service
// satisfies it.
type Text2SQL interface {
	Ask(ctx context.Context, req text2sql.AskRequest) (text2sql.AskResponse, error)
	Execute(ctx context.Context, sql string) (query.Result, error)
	Schema(ctx context.Context) (text2sql.SchemaSnapshot, error)
	RefreshSchema(ctx context.Context) (text2sql.RefreshResult, error)
	IndexInfo() (vectorindex.Info, bool)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Service           Text2SQL
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/schema/refresh", func(w http.ResponseWriter, r *http.Request) {
		handleSchemaRefresh(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/schema/refresh", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ready"}
	if deps.Service != nil {
		if info, ok := deps.Service.IndexInfo(); ok {
			payload["index"] = info
		} else {
			payload["index"] = nil
		}
	}
	if deps.Readiness == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := deps.Readiness(ctx); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// CheckDatabase pings the target database.
func CheckDatabase(db pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("target database is not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return errors.New("target database unreachable: " + err.Error())
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// requireService writes 501 and returns false when the service is not wired.
func requireService(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Service != nil {
		return true
	}
	writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text2sql service is not configured", false, nil)
	return false
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.Authorize(r.Context(), role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status and whether a client may
// retry the same request.
func statusFor(err error) (int, bool) {
	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		return http.StatusBadRequest, false
	case errs.KindSchemaRetrieval, errs.KindUnavailable:
		return http.StatusServiceUnavailable, true
	case errs.KindRetrieval:
		return http.StatusBadGateway, true
	case errs.KindQueryGeneration:
		return http.StatusUnprocessableEntity, false
	default:
		return http.StatusInternalServerError, false
	}
}

func errorCode(err error) string {
	kind := errs.KindOf(err)
	if kind == errs.KindUnknown {
		return "INTERNAL"
	}
	return strings.ToUpper(kind.String())
}

// writeServiceError logs err and writes it with the status for its kind.
func writeServiceError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	status, retryable := statusFor(err)
	if deps.Logger != nil && status >= http.StatusInternalServerError {
		observability.LoggerFor(r.Context(), deps.Logger).Warn("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(r.Context(), w, status, errorCode(err), errs.Message(err), retryable, extra)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"error":      message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
