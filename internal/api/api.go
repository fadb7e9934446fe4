// Package api exposes the HTTP surface: the call-ended webhook, health and
// stats endpoints, manual follow-up controls, and the activity dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/flow"
	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/proof"
	"github.com/AtividadeNgk/MaryCall/internal/ratelimit"
	"github.com/AtividadeNgk/MaryCall/internal/store"
	"github.com/AtividadeNgk/MaryCall/internal/tracking"
)

// Timeouts for the HTTP server.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server hosts the webhook and admin endpoints.
type Server struct {
	engine    *flow.Engine
	limiter   *ratelimit.Limiter
	store     store.Store
	tracker   *tracking.Tracker
	followups *followup.Manager
	reviewer  *proof.Reviewer
	clock     clockwork.Clock

	httpServer *http.Server
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, engine *flow.Engine, limiter *ratelimit.Limiter, st store.Store, tracker *tracking.Tracker, followups *followup.Manager, reviewer *proof.Reviewer, clock clockwork.Clock) *Server {
	s := &Server{
		engine:    engine,
		limiter:   limiter,
		store:     st,
		tracker:   tracker,
		followups: followups,
		reviewer:  reviewer,
		clock:     clock,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/call-ended", s.handleCallEnded)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/dashboard-data", s.handleDashboardData)
	mux.HandleFunc("POST /api/cancel-followup/{userID}", s.handleCancelFollowup)
	mux.HandleFunc("POST /api/test-followup/{userID}", s.handleTestFollowup)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleCallEnded receives the notification from the external video-call
// page that a user's call finished, and resumes the funnel for that user.
func (s *Server) handleCallEnded(w http.ResponseWriter, r *http.Request) {
	var req models.CallEndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("API call-ended received malformed body", "error", err)
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := req.ParseUserID()
	if err != nil {
		slog.Warn("API call-ended received invalid userId", "error", err, "raw", req.UserID.String())
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.limiter.Allow(r.Context(), ratelimit.ActionWebhook, userID) {
		writeJSONResponse(w, http.StatusTooManyRequests, models.RateLimited("too many call notifications"))
		return
	}

	slog.Info("API call-ended accepted", "userID", userID, "duration", req.Duration)
	s.engine.ResumeAfterCall(r.Context(), userID, req.Duration)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("call-ended processed", map[string]int64{"userId": userID}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "redis"
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		slog.Warn("API health check found primary store unreachable", "error", err)
		backend = "memory"
		status = "degraded"
	}

	writeJSONResponse(w, http.StatusOK, models.HealthStatus{
		Status:       status,
		Timestamp:    s.clock.Now().UTC(),
		StoreBackend: backend,
		TrackedUsers: s.tracker.TrackedUsers(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"activity":       s.tracker.Snapshot(),
		"followups":      s.followups.Stats(),
		"sessions":       s.engine.Sessions().Len(),
		"pending_proofs": s.reviewer.PendingCount(),
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleCancelFollowup(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}
	s.followups.CancelAll(userID)
	slog.Info("API cancelled follow-ups", "userID", userID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("follow-ups cancelled", map[string]int64{"userId": userID}))
}

func (s *Server) handleTestFollowup(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}
	s.engine.TriggerPaymentFollowup(r.Context(), userID)
	slog.Info("API triggered payment follow-up", "userID", userID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("payment follow-up armed", map[string]int64{"userId": userID}))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("MaryCall bot is running", nil))
}

func (s *Server) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("userID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "userID must be numeric")
		return 0, false
	}
	return userID, true
}
