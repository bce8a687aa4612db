// ABOUTME: Account HTTP handlers - signup, login, logout, me, token issuance
// ABOUTME: Signup and login establish the browser session cookie

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/ember-chat/internal/auth"
	"github.com/2389/ember-chat/internal/store"
)

// CredentialsRequest is the JSON body for signup and login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the JSON shape for account endpoints
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidSignup):
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateUser):
			s.sendJSONError(w, http.StatusConflict, "email already registered")
		default:
			s.logger.Error("signup failed", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if err := s.startSession(w, r, user.ID); err != nil {
		s.logger.Error("failed to create session after signup", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.sendJSONError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.logger.Error("login failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.startSession(w, r, user.ID); err != nil {
		s.logger.Error("failed to create session after login", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, UserResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := s.auth.DeleteSession(r.Context(), cookie.Value); err != nil {
			s.logger.Error("failed to delete session", "error", err)
		}
	}
	auth.ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	s.sendJSON(w, http.StatusOK, UserResponse{ID: id.UserID, Email: id.Email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	token, err := s.auth.IssueToken(id.UserID)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(auth.TokenDuration.Seconds()),
	})
}

// startSession creates a store-backed session and sets the cookie
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	session, err := s.auth.NewSession(r.Context(), userID)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, r, session)
	return nil
}
