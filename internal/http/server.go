// Package http exposes the ledger over a JSON API plus a push stream of
// ledger snapshots.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"hisab/internal/auth"
	"hisab/internal/authz"
	"hisab/internal/cache"
	"hisab/internal/core"
	"hisab/internal/services"
)

type Server struct {
	http.Server

	authn    *auth.Authenticator
	sessions *auth.Sessions
	creds    *services.CredentialService
	ledger   *services.LedgerService

	rateLimiter *rateLimiter

	// Report responses keyed by ledger revision and range; a new revision
	// changes the key, so stale entries just age out.
	reportCache *cache.LRUCache[core.Report]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, authn *auth.Authenticator, sessions *auth.Sessions, creds *services.CredentialService, ledger *services.LedgerService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		authn:            authn,
		sessions:         sessions,
		creds:            creds,
		ledger:           ledger,
		rateLimiter:      newRateLimiter(),
		reportCache:      cache.NewLRUCache[core.Report](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/api/bootstrap", s.withCommon(s.handleBootstrap))
	mux.HandleFunc("/api/register", s.withCommon(s.handleRegister))
	mux.HandleFunc("/api/login", s.withCommon(s.handleLogin))
	mux.HandleFunc("/api/logout", s.withCommon(s.handleLogout))

	mux.HandleFunc("/api/transactions", s.withCommon(s.handleTransactions))
	mux.HandleFunc("/api/transactions/", s.withCommon(s.handleTransactionByID))
	mux.HandleFunc("/api/totals", s.withCommon(s.handleTotals))
	mux.HandleFunc("/api/reports/expenses", s.withCommon(s.handleExpenseReport))
	mux.HandleFunc("/api/stream", s.withCommon(s.handleStream))

	mux.HandleFunc("/api/managers", s.withCommon(s.handleManagers))
	mux.HandleFunc("/api/managers/", s.withCommon(s.handleManagerByName))
	mux.HandleFunc("/api/credentials", s.withCommon(s.handleCredentials))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportCache.CleanExpired()
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

type contextKey string

const requestIDKey contextKey = "request_id"

// withCommon adds request tracing, security headers, and rate limiting on
// mutating requests.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := clientIPFrom(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// authorize resolves the bearer token to a session and checks that the
// session's role may perform op. A false return means the response has
// already been written.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, op authz.Operation) (core.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return core.Session{}, false
	}
	session, ok := s.sessions.Get(token)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "session expired, please log in again"})
		return core.Session{}, false
	}
	if !authz.Can(session.Role, op) {
		slog.WarnContext(r.Context(), "Operation forbidden",
			"username", session.Username,
			"role", string(session.Role),
			"operation", string(op))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "operation not allowed for role " + string(session.Role)})
		return core.Session{}, false
	}
	return session, true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Flush passes through so the stream handler keeps working.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
