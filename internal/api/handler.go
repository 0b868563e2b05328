// Package api serves the evaluation engine over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/pipeline"
	"github.com/kalambet/claimcheck/internal/synth"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Engine is the part of pipeline.Service the transport layers use.
type Engine interface {
	Ask(ctx context.Context, query string) (pipeline.Answer, error)
	AnalyzeClaim(ctx context.Context, rec claim.Record) (pipeline.ClaimAnalysis, error)
	Evaluate(ctx context.Context, rec claim.Record, depth string) (synth.Report, error)
}

type Deps struct {
	Engine Engine

	// Token protects /api routes when set. It may hold several
	// comma-separated tokens.
	Token string

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(ParseTokens(deps.Token)))
		r.Post("/chat", handleChat(deps))
		r.Post("/analyze-claim", handleAnalyzeClaim(deps))
		r.Post("/agent-feedback", handleEvaluate(deps, string(pipeline.Fast)))
		r.Post("/agent-feedback-deep", handleEvaluate(deps, string(pipeline.Deep)))
		r.Post("/evaluate", handleEvaluate(deps, ""))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

type chatRequest struct {
	Query string `json:"query"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ans, err := deps.Engine.Ask(r.Context(), req.Query)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

func handleAnalyzeClaim(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec claim.Record
		if !decodeBody(w, r, &rec) {
			return
		}
		out, err := deps.Engine.AnalyzeClaim(r.Context(), rec)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleEvaluate serves both fixed-depth routes and /api/evaluate, where
// the depth comes from the query string and defaults to fast.
func handleEvaluate(deps Deps, depth string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := depth
		if d == "" {
			d = r.URL.Query().Get("depth")
			if d == "" {
				d = string(pipeline.Fast)
			}
		}

		var rec claim.Record
		if !decodeBody(w, r, &rec) {
			return
		}
		report, err := deps.Engine.Evaluate(r.Context(), rec, d)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", nil, "invalid request body: %v", err)
		return false
	}
	return true
}

// writeEngineError maps engine errors onto HTTP statuses: validation
// failures are 400, upstream failures 502, anything else 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperr.ValidationError
	var uerr *apperr.UpstreamServiceError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", verr.Fields, "invalid input")
	case errors.As(err, &uerr):
		slog.Warn("upstream failure", "request_id", requestIDFrom(r.Context()), "service", uerr.Service, "error", err)
		httpError(w, http.StatusBadGateway, "upstream_error", nil, "%s unavailable, retry later", uerr.Service)
	default:
		slog.Error("request failed", "request_id", requestIDFrom(r.Context()), "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", nil, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, details map[string][]string, format string, args ...any) {
	body := map[string]any{
		"message": fmt.Sprintf(format, args...),
		"type":    errType,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, code, map[string]any{"error": body})
}

type ctxKey struct{}

// requestID tags each request with an ID, echoed in X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		slog.Debug("request served", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
