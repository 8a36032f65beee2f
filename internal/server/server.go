// Package server exposes the management API used by the web UI: settings,
// browser control, import runs and the live log.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jakopako/bankpull/internal/bank"
	"github.com/jakopako/bankpull/internal/notify"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/workflow"
	"github.com/spf13/afero"
	"golang.org/x/net/websocket"
)

const maxBodySize = 1 << 20

// Engine is the part of the import workflow the API controls.
type Engine interface {
	Start(ctx context.Context, dr types.DateRange) (string, error)
	State() workflow.State
	LastResult() *types.RunResult
	NavigateToLogin(ctx context.Context) error
	Highlight(ctx context.Context, selector string) (int, error)
	Discover(ctx context.Context) ([]bank.Account, error)
}

// Browser controls the lifetime of the browser session.
type Browser interface {
	Launch(ctx context.Context) error
	Close()
	IsActive() bool
}

// SettingsStore is the persisted runtime configuration.
type SettingsStore interface {
	Get() settings.Settings
	Update(patch []byte) (settings.Settings, error)
	AddAccountMapping(name, configPath string) (settings.Settings, error)
}

// Options configure a Server.
type Options struct {
	Engine   Engine
	Browser  Browser
	Settings SettingsStore
	Hub      *notify.Hub
	// Static holds the pre-built web UI. Without it only the API is served.
	Static afero.Fs
	// RateLimit is the number of requests per second and client. 0 disables limiting.
	RateLimit int
}

// Server handles HTTP requests for the management UI.
type Server struct {
	engine   Engine
	browser  Browser
	settings SettingsStore
	hub      *notify.Hub
	static   afero.Fs
	limiter  *RateLimiter
	logger   *slog.Logger
	mux      *http.ServeMux
}

func New(o Options) *Server {
	s := &Server{
		engine:   o.Engine,
		browser:  o.Browser,
		settings: o.Settings,
		hub:      o.Hub,
		static:   o.Static,
		logger:   slog.With(slog.String("component", "server")),
		mux:      http.NewServeMux(),
	}
	if o.RateLimit > 0 {
		s.limiter = NewRateLimiter(o.RateLimit, 2*o.RateLimit)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/config", s.withLogging(s.handleGetConfig))
	s.mux.HandleFunc("POST /api/config", s.withLogging(s.handleUpdateConfig))
	s.mux.HandleFunc("POST /api/accounts", s.withLogging(s.handleAddAccount))

	s.mux.HandleFunc("POST /api/browser/launch", s.withLogging(s.handleLaunch))
	s.mux.HandleFunc("POST /api/browser/close", s.withLogging(s.handleClose))
	s.mux.HandleFunc("POST /api/browser/highlight", s.withLogging(s.handleHighlight))

	s.mux.HandleFunc("GET /api/accounts/discover", s.withLogging(s.handleDiscover))
	s.mux.HandleFunc("POST /api/import/start", s.withLogging(s.handleStartImport))
	s.mux.HandleFunc("GET /api/import/status", s.withLogging(s.handleStatus))
	s.mux.HandleFunc("GET /api/logs", s.withLogging(s.handleLogs))

	s.mux.Handle("GET /ws", websocket.Server{Handler: s.handleWS})

	s.mux.HandleFunc("/api/", s.withLogging(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, http.StatusNotFound, "API not found", nil)
	}))
	s.mux.HandleFunc("/", s.withLogging(s.handleStatic))
}

// Handler returns the root handler including rate limiting.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		return s.mux
	}
	return s.limiter.Middleware(s.mux)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(fmt.Sprintf("server running on %s", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	attrs := []any{slog.Int("status", status), slog.String("msg", message), slog.String("method", r.Method), slog.String("path", r.URL.Path)}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	s.logger.Warn("request error", attrs...)
	_ = s.writeJSON(w, status, map[string]string{"error": message})
}

// withLogging wraps a handler to log requests and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", slog.Any("panic", rec), slog.String("method", r.Method), slog.String("path", r.URL.Path))
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}
