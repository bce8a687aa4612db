// ABOUTME: HTTP server assembly - routes, middleware, and JSON helpers
// ABOUTME: Maps the REST surface onto the store, auth, and chat services

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/2389/ember-chat/internal/auth"
	"github.com/2389/ember-chat/internal/chat"
	"github.com/2389/ember-chat/internal/store"
)

// Server holds the HTTP handlers and their dependencies
type Server struct {
	store  store.Store
	chat   *chat.Service
	auth   *auth.Service
	logger *slog.Logger
}

// New creates a web server over the given services
func New(st store.Store, chatSvc *chat.Service, authSvc *auth.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		chat:   chatSvc,
		auth:   authSvc,
		logger: logger.With("component", "web"),
	}
}

// Handler builds the full route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Account endpoints - signup and login establish the session
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("GET /auth/me", s.auth.Middleware(http.HandlerFunc(s.handleMe)))
	mux.Handle("POST /auth/token", s.auth.Middleware(http.HandlerFunc(s.handleToken)))

	// Conversation endpoints - all owner-scoped
	mux.Handle("POST /conversations", s.auth.Middleware(http.HandlerFunc(s.handleCreateConversation)))
	mux.Handle("GET /conversations", s.auth.Middleware(http.HandlerFunc(s.handleListConversations)))
	mux.Handle("GET /conversations/{id}", s.auth.Middleware(http.HandlerFunc(s.handleGetConversation)))
	mux.Handle("POST /conversations/{id}/chat", s.auth.Middleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /conversations/{id}/reset", s.auth.Middleware(http.HandlerFunc(s.handleReset)))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON writes a JSON response body
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
