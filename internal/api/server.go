package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Vinmsh25/skillbarter/internal/bus"
	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

type contextKey string

const identityKey contextKey = "identity"

// Server is the HTTP surface for session lifecycle and timer operations.
// It holds no business logic: requests are authenticated, dispatched to the
// session engine, and mapped to status codes.
type Server struct {
	engine   interfaces.SessionEngine
	store    interfaces.Store
	verifier interfaces.TokenVerifier
	groups   interfaces.GroupBus
	handler  http.Handler
}

// NewServer creates the API server and its routes.
func NewServer(engine interfaces.SessionEngine, store interfaces.Store,
	verifier interfaces.TokenVerifier, groups interfaces.GroupBus) *Server {
	s := &Server{
		engine:   engine,
		store:    store,
		verifier: verifier,
		groups:   groups,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	sessions := r.PathPrefix("/api/sessions").Subrouter()
	sessions.Handle("", s.requireAuth(s.createSession)).Methods(http.MethodPost)
	sessions.Handle("/{id}", s.requireAuth(s.getSession)).Methods(http.MethodGet)
	sessions.Handle("/{id}/timer/start", s.requireAuth(s.startTimer)).Methods(http.MethodPost)
	sessions.Handle("/{id}/timer/stop", s.requireAuth(s.stopTimer)).Methods(http.MethodPost)
	sessions.Handle("/{id}/end", s.requireAuth(s.endSession)).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// requireAuth verifies the Bearer token and stores the identity in the
// request context.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, types.Identity)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.sendError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			s.sendError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(tokenString)
		if err != nil {
			s.sendError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next(w, r.WithContext(ctx), identity)
	})
}

type createSessionRequest struct {
	PartnerID string `json:"partner_id"`
}

type sessionResponse struct {
	Message string         `json:"message,omitempty"`
	Session *types.Session `json:"session"`
}

type sessionDetailResponse struct {
	Session *types.Session        `json:"session"`
	Timers  []*types.SessionTimer `json:"timers"`
}

type timerResponse struct {
	Message string              `json:"message"`
	Timer   *types.SessionTimer `json:"timer"`
}

type endSessionResponse struct {
	Message       string                   `json:"message"`
	Session       *types.Session           `json:"session"`
	CreditSummary *types.SettlementSummary `json:"credit_summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.PartnerID == "" {
		s.sendError(w, "partner_id is required", http.StatusBadRequest)
		return
	}

	session, err := s.engine.CreateSession(r.Context(), identity.ID, req.PartnerID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, sessionResponse{Message: "Session created.", Session: session})
}

// GET /api/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if !session.HasParticipant(identity.ID) {
		s.sendError(w, types.ErrNotParticipant.Error(), http.StatusForbidden)
		return
	}

	timers, err := s.engine.SessionTimers(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, sessionDetailResponse{Session: session, Timers: timers})
}

// POST /api/sessions/{id}/timer/start
func (s *Server) startTimer(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	sessionID := mux.Vars(r)["id"]

	timer, err := s.engine.StartTimer(r.Context(), sessionID, identity.ID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, timerResponse{Message: "Timer started.", Timer: timer})
}

// POST /api/sessions/{id}/timer/stop
func (s *Server) stopTimer(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	sessionID := mux.Vars(r)["id"]

	timer, err := s.engine.StopTimer(r.Context(), sessionID, identity.ID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, timerResponse{Message: "Timer stopped.", Timer: timer})
}

// POST /api/sessions/{id}/end
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	sessionID := mux.Vars(r)["id"]

	summary, err := s.engine.EndSession(r.Context(), sessionID, identity.ID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	session, err := s.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	// Settlement is already durable; the broadcast is a courtesy to
	// connected clients.
	if s.groups != nil {
		s.groups.Broadcast(bus.ChatGroupKey(sessionID), types.NewSessionEnded(summary))
	}

	s.sendJSON(w, http.StatusOK, endSessionResponse{
		Message:       "Session ended.",
		Session:       session,
		CreditSummary: summary,
	})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// sendEngineError maps the engine's error taxonomy onto HTTP status codes.
func (s *Server) sendEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSessionNotFound), errors.Is(err, types.ErrUserNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrNotParticipant), errors.Is(err, types.ErrNotOwner):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrSessionInactive),
		errors.Is(err, types.ErrAlreadyRunning),
		errors.Is(err, types.ErrNoActiveTimer),
		errors.Is(err, types.ErrAlreadyEnded):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("API request failed: %v", err)
		s.sendError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, errorResponse{Error: message})
}
