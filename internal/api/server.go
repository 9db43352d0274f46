// Package api serves campaign runs, health and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"outreach-engine/internal/campaign"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

const maxBodyBytes = 1 << 20

type Dispatcher interface {
	Dispatch(ctx context.Context, req campaign.Request) (*models.CampaignResult, error)
}

// Check is one readiness probe, such as a database ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Server struct {
	dispatcher Dispatcher
	checks     []Check
	logger     logger.Logger
}

func NewServer(d Dispatcher, log logger.Logger, checks ...Check) *Server {
	return &Server{
		dispatcher: d,
		checks:     checks,
		logger:     log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Router mounts every route. metrics may be nil to use the default
// prometheus handler.
func (s *Server) Router(metrics http.Handler) http.Handler {
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/campaigns/run", s.runCampaign)
	})
	return r
}

func (s *Server) runCampaign(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	req, err := campaign.ParseRequest(raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.RunID == "" {
		req.RunID = middleware.GetReqID(r.Context())
	}

	s.logger.Info("campaign requested", map[string]interface{}{
		"templateId": req.TemplateID,
		"channel":    req.Channel,
		"dryRun":     req.DryRun,
	})

	result, err := s.dispatcher.Dispatch(r.Context(), *req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[c.Name] = err.Error()
			s.logger.Warn("readiness check failed", map[string]interface{}{"check": c.Name, "error": err})
			continue
		}
		report[c.Name] = "ok"
	}
	writeJSON(w, status, report)
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Meta    map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.AsStandard(err)
	status := StatusFor(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("campaign request failed", map[string]interface{}{"code": stdErr.Code, "error": err})
	}
	writeJSON(w, status, errorBody{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
		Meta:    stdErr.Metadata,
	})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeCampaignInProgress:
		return http.StatusConflict
	case apperrors.ErrCodeTemplateValidationFailed,
		apperrors.ErrCodeTemplateChannelMismatch,
		apperrors.ErrCodeNoPendingTargets,
		apperrors.ErrCodeChannelNotConfigured:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTargetsUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
