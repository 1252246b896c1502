// Package api exposes verification over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/store"
	"github.com/sells-group/grant-verifier/internal/verify"
)

// Verifier runs one verification.
type Verifier interface {
	Verify(ctx context.Context, grantID string) (*verify.Response, error)
}

// GrantReader is the read side of the store used by the API.
type GrantReader interface {
	GetGrant(ctx context.Context, id string) (*model.Grant, error)
	ListGrants(ctx context.Context, filter store.GrantFilter) ([]model.Grant, error)
	ListVerificationLogs(ctx context.Context, grantID string, limit int) ([]model.VerificationLog, error)
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	AllowedOrigins []string
}

// Server holds the API handlers.
type Server struct {
	verifier Verifier
	grants   GrantReader
	validate *validator.Validate
	opts     Options
}

// NewServer creates a Server.
func NewServer(v Verifier, grants GrantReader, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		verifier: v,
		grants:   grants,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Get("/grants", s.handleListGrants)
		r.Get("/grants/{id}", s.handleGetGrant)
		r.Post("/grants/{id}/verify", s.handleVerifyGrant)
		r.Get("/grants/{id}/verifications", s.handleListVerifications)
	})
	return r
}

type verifyRequest struct {
	GrantID string `json:"grant_id" validate:"required"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.grants.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.GrantID = strings.TrimSpace(req.GrantID)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "grant_id is required")
		return
	}
	s.runVerify(w, r, req.GrantID)
}

func (s *Server) handleVerifyGrant(w http.ResponseWriter, r *http.Request) {
	s.runVerify(w, r, chi.URLParam(r, "id"))
}

func (s *Server) runVerify(w http.ResponseWriter, r *http.Request, grantID string) {
	resp, err := s.verifier.Verify(r.Context(), grantID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.GrantFilter{Status: model.VerificationStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	grants, err := s.grants.ListGrants(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if grants == nil {
		grants = []model.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

func (s *Server) handleGetGrant(w http.ResponseWriter, r *http.Request) {
	g, err := s.grants.GetGrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	logs, err := s.grants.ListVerificationLogs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.VerificationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// writeFailure maps known errors onto status codes. Anything else is a 500
// with a generic message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, verify.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "grant_id is required")
	case errors.Is(err, verify.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "grant not found")
	case errors.Is(err, verify.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "verification service not configured")
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
