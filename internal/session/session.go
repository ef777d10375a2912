package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/calpane/internal/google"
	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
)

// ErrNotAuthenticated is returned when no valid session exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError reports a failed sign-in. Message is shown to the user verbatim.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Session is the credential produced by one successful sign-in.
// It is passed explicitly to every calendar call.
type Session struct {
	token     *oauth2.Token
	createdAt time.Time
	now       func() time.Time
}

// New wraps an access token in a Session.
func New(token *oauth2.Token) *Session {
	return &Session{token: token, createdAt: time.Now(), now: time.Now}
}

// AccessToken returns the bearer token, or false once it has expired.
func (s *Session) AccessToken() (string, bool) {
	if s == nil || s.token == nil || s.token.AccessToken == "" {
		return "", false
	}
	if !s.token.Expiry.IsZero() && !s.token.Expiry.After(s.now()) {
		return "", false
	}
	return s.token.AccessToken, true
}

// CreatedAt returns when the session was established.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Holder owns the single current session. Tokens are kept in memory only.
type Holder struct {
	mu      sync.Mutex
	auth    google.Authenticator
	current *Session
	state   string
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewHolder creates a Holder that signs users in with auth.
// auth may be nil when OAuth is not configured; Begin then returns an error.
func NewHolder(auth google.Authenticator, logger *slog.Logger, metrics *instrumentation.Metrics) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Holder{
		auth:    auth,
		now:     time.Now,
		logger:  logging.WithComponent(logger, "session"),
		metrics: metrics,
	}
}

// Begin starts an interactive sign-in and returns the provider URL to visit.
func (h *Holder) Begin() (string, error) {
	if h.auth == nil {
		return "", &AuthError{Message: "Google Sign-In is not configured"}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = uuid.NewString()
	return h.auth.AuthCodeURL(h.state), nil
}

// Complete finishes a sign-in from the provider callback parameters.
// providerErr is the provider's "error" parameter, if any. Failures are never retried.
func (h *Holder) Complete(ctx context.Context, state, code, providerErr string) (*Session, error) {
	s, err := h.complete(ctx, state, code, providerErr)
	if err != nil {
		h.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		h.logger.Warn("sign-in failed", logging.Err(err))
		return nil, err
	}
	h.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	h.logger.Info("signed in", slog.String("token", logging.SanitizeToken(s.token.AccessToken)))
	return s, nil
}

func (h *Holder) complete(ctx context.Context, state, code, providerErr string) (*Session, error) {
	if h.auth == nil {
		return nil, &AuthError{Message: "Google Sign-In is not configured"}
	}

	h.mu.Lock()
	expected := h.state
	h.state = ""
	h.mu.Unlock()

	if providerErr != "" {
		return nil, &AuthError{Message: providerErr}
	}
	if expected == "" || state != expected {
		return nil, &AuthError{Message: "sign-in state mismatch"}
	}
	if code == "" {
		return nil, &AuthError{Message: "missing authorization code"}
	}

	token, err := h.auth.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Message: "failed to exchange authorization code", Err: err}
	}
	if token == nil || token.AccessToken == "" {
		return nil, &AuthError{Message: "provider returned no access token"}
	}

	s := &Session{token: token, createdAt: h.now(), now: h.now}

	h.mu.Lock()
	h.current = s
	h.mu.Unlock()

	return s, nil
}

// Logout discards the current session.
func (h *Holder) Logout() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		h.logger.Info("signed out", slog.Duration("session_age", time.Since(h.current.CreatedAt()).Truncate(time.Second)))
	}
	h.current = nil
	h.state = ""
}

// Current returns the live session or ErrNotAuthenticated.
// An expired session is discarded.
func (h *Holder) Current() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		return nil, ErrNotAuthenticated
	}
	if _, ok := h.current.AccessToken(); !ok {
		h.logger.Info("session expired")
		h.current = nil
		return nil, fmt.Errorf("session expired: %w", ErrNotAuthenticated)
	}
	return h.current, nil
}

// SignedIn reports whether a live session exists.
func (h *Holder) SignedIn() bool {
	_, err := h.Current()
	return err == nil
}
