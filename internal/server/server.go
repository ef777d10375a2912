package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/calpane/internal/google"
	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
	"github.com/teemow/calpane/internal/ui"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

const (
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	DefaultIdleTimeout = 120 * time.Second
)

// Adapter is the presentation state machine driven by the HTTP handlers.
type Adapter interface {
	View(now time.Time) ui.View
	SignIn() (string, error)
	CompleteSignIn(ctx context.Context, state, code, providerErr string) error
	SignOut()
	Load(ctx context.Context) error
	Create(ctx context.Context, form ui.Form) error
	Delete(ctx context.Context, eventID string) error
	ClearForm()
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address (e.g., "localhost:8080")
	Addr string

	// BaseURL is the origin the browser uses; cross-origin form posts are rejected.
	BaseURL string

	Adapter Adapter
	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// Now is the clock used to render notices (default: time.Now)
	Now func() time.Time
}

// Server is the local web UI.
type Server struct {
	adapter    Adapter
	health     *HealthChecker
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
	origin     string
	addr       string
	httpServer *http.Server
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthChecker(nil)
	}

	s := &Server{
		adapter: cfg.Adapter,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		logger:  logging.WithComponent(cfg.Logger, "server"),
		now:     cfg.Now,
		addr:    cfg.Addr,
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		s.origin = u.Scheme + "://" + u.Host
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /signin", s.handleSignIn)
	mux.HandleFunc("GET "+google.CallbackPath, s.handleCallback)
	mux.HandleFunc("POST /signout", s.handleSignOut)
	mux.HandleFunc("POST /events/load", s.handleLoad)
	mux.HandleFunc("POST /events", s.handleCreate)
	mux.HandleFunc("POST /events/{id}/delete", s.handleDelete)
	mux.HandleFunc("POST /form/clear", s.handleClearForm)
	s.health.RegisterHealthEndpoints(mux)

	return s.instrument(securityHeaders(s.sameOrigin(mux)))
}

// StartWithReadySignal listens on the configured address, closes ready once
// the listener is bound and serves until Shutdown.
func (s *Server) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	s.health.SetReady(true)
	s.logger.Info("starting web UI", slog.String("addr", s.addr))
	close(ready)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready and stops it gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.MarkShuttingDown()
	s.logger.Info("shutting down web UI")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

type pageData struct {
	View           ui.View
	RefreshSeconds int
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	view := s.adapter.View(s.now())
	data := pageData{View: view}
	if view.RefreshAfter > 0 {
		data.RefreshSeconds = int(math.Ceil(view.RefreshAfter.Seconds()))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", logging.Err(err))
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.adapter.SignIn()
	if err != nil {
		s.logger.Warn("sign-in unavailable", logging.Err(err))
		s.home(w, r)
		return
	}
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerErr := q.Get("error")
	if desc := q.Get("error_description"); providerErr != "" && desc != "" {
		providerErr += ": " + desc
	}
	_ = s.adapter.CompleteSignIn(r.Context(), q.Get("state"), q.Get("code"), providerErr)
	s.home(w, r)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.adapter.SignOut()
	s.home(w, r)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.logAction(s.adapter.Load(r.Context()), instrumentation.OperationList)
	s.home(w, r)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := ui.Form{
		Title:       r.PostForm.Get("title"),
		Description: r.PostForm.Get("description"),
		Start:       r.PostForm.Get("start"),
		End:         r.PostForm.Get("end"),
	}
	s.logAction(s.adapter.Create(r.Context(), form), instrumentation.OperationCreate)
	s.home(w, r)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.logAction(s.adapter.Delete(r.Context(), id), instrumentation.OperationDelete, logging.EventID(id))
	s.home(w, r)
}

func (s *Server) handleClearForm(w http.ResponseWriter, r *http.Request) {
	s.adapter.ClearForm()
	s.home(w, r)
}

// home redirects back to the page (post/redirect/get).
func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// logAction logs at debug; failures are already shown to the user.
func (s *Server) logAction(err error, op string, attrs ...any) {
	if err == nil {
		return
	}
	args := append([]any{logging.Operation(op), logging.Err(err)}, attrs...)
	s.logger.Debug("action failed", args...)
}

// sameOrigin rejects state-changing requests sent from another site.
func (s *Server) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && s.origin != "" {
			if origin := r.Header.Get("Origin"); origin != "" && origin != s.origin {
				s.logger.Warn("rejected cross-origin request", slog.String("origin", origin))
				http.Error(w, "cross-origin request rejected", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets security headers on HTTP responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; form-action 'self' https://accounts.google.com; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics labelled by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status, duration)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("route", route),
			logging.HTTPStatus(rec.status),
			slog.Duration(logging.KeyDuration, duration))
	})
}
