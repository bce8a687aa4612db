// ABOUTME: HTTP middleware for authenticating API requests
// ABOUTME: Accepts either the browser session cookie or a Bearer JWT

package auth

import (
	"net/http"
	"strings"

	"github.com/2389/ember-chat/internal/store"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware authenticates requests and attaches the Identity to the context.
// A valid session cookie wins; otherwise a Bearer token is accepted. Requests
// with neither get a 401 and never reach the handler.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			if id, err := s.resolveSession(r.Context(), cookie.Value); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
				return
			}
		}

		if token, errMsg := extractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
			if id, err := s.resolveToken(r.Context(), token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})
}

// SetSessionCookie writes the session cookie on a response
func SetSessionCookie(w http.ResponseWriter, r *http.Request, session *store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on a response
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
