// Package server exposes the verification engine over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
)

// Runner executes a verification request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*model.Report, error)
}

// StateSource provides the current service state snapshot
type StateSource interface {
	Load() pipeline.ServiceState
}

// Server serves the verification API
type Server struct {
	runner  Runner
	state   StateSource
	maxBody int64
}

// New creates the API server for cfg
func New(cfg model.ServerConfig, runner Runner, state StateSource) *http.Server {
	s := &Server{runner: runner, state: state, maxBody: cfg.MaxBodyBytes}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

// Routes returns the API router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, m.RequestID, m.RealIP, logRequests, m.Recoverer)

	r.Post("/api/v1/validate", s.validate)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// validateRequest is the wire form of a verification request
type validateRequest struct {
	SourceText *string         `json:"source_text"`
	Claims     json.RawMessage `json:"claims"`
	Schema     json.RawMessage `json:"schema"`
	Policies   json.RawMessage `json:"policies"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind      model.ErrorKind `json:"kind"`
	Message   string          `json:"message"`
	Field     string          `json:"field,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, model.Wrap(model.KindInput, "", "request body too large", err))
			return
		}
		s.writeError(w, r, model.Wrap(model.KindInput, "", "malformed request body", err))
		return
	}
	if req.SourceText == nil {
		s.writeError(w, r, &model.Error{Kind: model.KindInput, Field: "source_text", Message: "source_text is required"})
		return
	}

	run := pipeline.Request{
		SourceText: *req.SourceText,
		Claims:     req.Claims,
		Schema:     req.Schema,
		Policies:   req.Policies,
	}
	if len(req.Policies) == 0 {
		run.Policies = model.DefaultPolicy()
	}

	report, err := s.runner.Run(r.Context(), run)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Load())
}

// writeError logs the full error and returns only its public form
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := m.GetReqID(r.Context())
	e := model.AsError(err)
	code := statusFor(e.Kind)

	if code >= http.StatusInternalServerError {
		logger.Error("request %s: %v", reqID, err)
	} else {
		logger.Debug("request %s rejected: %v", reqID, err)
	}

	pub := e.Public()
	detail := errorDetail{Kind: pub.Kind, Message: pub.Message, Field: pub.Field}
	if e.Kind == model.KindInternal {
		detail.RequestID = reqID
	}
	writeJSON(w, code, errorBody{Error: detail})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInput:
		return http.StatusBadRequest
	case model.KindSchema, model.KindPolicy:
		return http.StatusUnprocessableEntity
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	case model.KindRetrieval, model.KindValidator:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
