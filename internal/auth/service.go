// ABOUTME: Account and session service - signup, login, logout, API tokens
// ABOUTME: Backed by the store's user and session tables, bcrypt for passwords

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/ember-chat/internal/store"
)

const (
	// SessionCookieName is the name of the browser session cookie
	SessionCookieName = "ember_session"

	// DefaultSessionDuration is how long browser sessions last unless configured
	DefaultSessionDuration = 7 * 24 * time.Hour

	// TokenDuration is how long issued API tokens last
	TokenDuration = 24 * time.Hour

	minPasswordLength = 8
)

// ErrInvalidCredentials is returned on login failure. Unknown email and wrong
// password are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidSignup is returned when signup input fails validation
var ErrInvalidSignup = errors.New("invalid signup input")

// AccountStore defines what the auth service needs from storage
type AccountStore interface {
	CreateUser(ctx context.Context, user *store.User) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)

	CreateSession(ctx context.Context, session *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Service handles accounts, browser sessions, and API token issuance
type Service struct {
	store           AccountStore
	verifier        *JWTVerifier
	sessionDuration time.Duration
	logger          *slog.Logger
}

// NewService creates an auth service. The secret signs API tokens; a zero
// sessionDuration falls back to DefaultSessionDuration.
func NewService(accounts AccountStore, secret []byte, sessionDuration time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionDuration <= 0 {
		sessionDuration = DefaultSessionDuration
	}
	return &Service{
		store:           accounts,
		verifier:        NewJWTVerifier(secret),
		sessionDuration: sessionDuration,
		logger:          logger.With("component", "auth"),
	}
}

// Verifier exposes the token verifier for middleware wiring
func (s *Service) Verifier() *JWTVerifier {
	return s.verifier
}

// Signup registers a new account and returns the created user
func (s *Service) Signup(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidSignup)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// dummyHash is compared against when the email is unknown so login timing
// does not reveal whether an account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Login checks credentials and returns the user on success
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Dummy bcrypt comparison to maintain constant timing
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// NewSession creates a browser session for a user
func (s *Service) NewSession(ctx context.Context, userID string) (*store.Session, error) {
	id, err := generateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	session := &store.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(s.sessionDuration),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a browser session. Unknown ids are not an error.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// IssueToken mints a bearer token for programmatic API access
func (s *Service) IssueToken(userID string) (string, error) {
	return s.verifier.Generate(userID, TokenDuration)
}

// resolveSession returns the identity behind a session cookie value
func (s *Service) resolveSession(ctx context.Context, sessionID string) (*Identity, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

// resolveToken returns the identity behind a bearer token
func (s *Service) resolveToken(ctx context.Context, token string) (*Identity, error) {
	userID, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

// generateSecureToken returns n random bytes hex-encoded
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
