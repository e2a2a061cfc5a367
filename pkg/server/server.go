// Package server exposes the chat, conversation, auth, API key, playground
// and admin REST API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/admin"
	"github.com/pocketllm/pocketllm/pkg/auth"
	"github.com/pocketllm/pocketllm/pkg/chat"
	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server is the PocketLLM HTTP API.
type Server struct {
	cfg    *config.Config
	auth   *auth.Service
	store  *store.Store
	chat   *chat.Orchestrator
	stats  *admin.Stats
	usage  UsageReporter
	logger *slog.Logger
	mux    *http.ServeMux
}

// UsageReporter aggregates playground token usage per API key.
type UsageReporter interface {
	Summary(ctx context.Context, keyID string) ([]models.UsageSummary, error)
}

// Option configures a Server.
type Option func(*Server)

// WithUsage enables per-key usage reports.
func WithUsage(u UsageReporter) Option {
	return func(s *Server) { s.usage = u }
}

var errForbidden = errors.New("forbidden")

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, a *auth.Service, st *store.Store, o *chat.Orchestrator, stats *admin.Stats, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		auth:   a,
		store:  st,
		chat:   o,
		stats:  stats,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/auth/user", s.handleCurrentUser)

	s.mux.HandleFunc("POST /api/chat", s.requireUser(s.handleChat))

	s.mux.HandleFunc("GET /api/conversations", s.requireUser(s.handleListConversations))
	s.mux.HandleFunc("POST /api/conversations", s.requireUser(s.handleCreateConversation))
	s.mux.HandleFunc("GET /api/conversations/{id}", s.requireUser(s.handleGetConversation))
	s.mux.HandleFunc("PUT /api/conversations/{id}", s.requireUser(s.handleRenameConversation))
	s.mux.HandleFunc("DELETE /api/conversations/{id}", s.requireUser(s.handleDeleteConversation))

	s.mux.HandleFunc("GET /api/cache/stats", s.requireUser(s.handleCacheStats))
	s.mux.HandleFunc("GET /api/admin/stats", s.requireUser(s.handleAdminStats))

	s.mux.HandleFunc("GET /api/apikey", s.requireUser(s.handleListAPIKeys))
	s.mux.HandleFunc("POST /api/apikey", s.requireUser(s.handleCreateAPIKey))
	s.mux.HandleFunc("DELETE /api/apikey/{id}", s.requireUser(s.handleDeleteAPIKey))
	s.mux.HandleFunc("GET /api/apikey/{id}/usage", s.requireUser(s.handleAPIKeyUsage))
	s.mux.HandleFunc("POST /api/playground/chat", s.handlePlayground)

	s.mux.HandleFunc("GET /api/admin/chats", s.requireAdmin(s.handleAdminChats))
	s.mux.HandleFunc("DELETE /api/admin/chats/{id}", s.requireAdmin(s.handleAdminDeleteChat))
	s.mux.HandleFunc("DELETE /api/admin/cache", s.requireAdmin(s.handleAdminClearCache))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("pocketllm listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type userIDKey struct{}

// requireUser rejects requests without a valid session and passes the
// caller's user ID down through the request context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(sessionToken(r))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

// requireAdmin additionally requires the caller's email to be listed in
// auth.admin_emails.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.store.UserByID(r.Context(), userID(r))
		if errors.Is(err, store.ErrNotFound) {
			err = auth.ErrUnauthenticated
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !s.cfg.Auth.IsAdmin(u.Email) {
			s.writeError(w, r, errForbidden)
			return
		}
		next(w, r)
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

// sessionToken reads the token from the session cookie, falling back to an
// Authorization bearer header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.auth.TTL().Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrNoMessages),
		errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrMissingKeyName):
		writeJSONError(w, http.StatusBadRequest, capitalize(err.Error()))
	case errors.Is(err, auth.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, errForbidden):
		writeJSONError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, store.ErrKeyNotFound):
		writeJSONError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, store.ErrUserExists):
		writeJSONError(w, http.StatusConflict, "User already exists")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
