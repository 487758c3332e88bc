// Package http exposes the expense services as a JSON API with a
// server-sent event stream of expense snapshots.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pennylogs/internal/backend"
	applog "pennylogs/internal/log"
	"pennylogs/internal/middleware/ratelimit"
	"pennylogs/internal/middleware/security"
	"pennylogs/internal/middleware/trace"
)

const (
	defaultHeartbeat = 25 * time.Second
	maxBodyBytes     = 1 << 20
)

type Options struct {
	RateLimitPerMinute int
	Logger             *applog.Logger
	// TrustedProxies may set X-Forwarded-For; nil uses the private ranges.
	TrustedProxies []string
	// Heartbeat is the keep-alive period of the event stream.
	Heartbeat time.Duration
}

type Server struct {
	http.Server
	b         *backend.Backend
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	ips       *security.IPExtractor
	heartbeat time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, b *backend.Backend, opts Options) (*Server, error) {
	proxies := opts.TrustedProxies
	if proxies == nil {
		proxies = security.DefaultTrustedProxies
	}
	ips, err := security.NewIPExtractor(proxies)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	s := &Server{
		b:         b,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:    trace.NewMiddleware(),
		ips:       ips,
		heartbeat: heartbeat,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /api/register", s.limited(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /api/login", s.limited(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.Handle("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.limited(s.authed(s.handleCreateExpense)))
	mux.Handle("GET /api/expenses/{id}", s.authed(s.handleGetExpense))
	mux.Handle("PATCH /api/expenses/{id}", s.limited(s.authed(s.handleUpdateExpense)))
	mux.Handle("DELETE /api/expenses/{id}", s.limited(s.authed(s.handleDeleteExpense)))

	mux.Handle("GET /api/recurring", s.authed(s.handleListRecurring))
	mux.Handle("POST /api/recurring/{id}/pause", s.limited(s.authed(s.handleSetPaused(true))))
	mux.Handle("POST /api/recurring/{id}/resume", s.limited(s.authed(s.handleSetPaused(false))))
	mux.Handle("POST /api/recurring/roll-forward", s.limited(s.authed(s.handleRollForward)))
	mux.Handle("POST /api/recurring/dedupe", s.limited(s.authed(s.handleDedupe)))

	mux.Handle("GET /api/overview", s.authed(s.handleOverview))
	mux.Handle("GET /api/categories", s.authed(s.handleListCategories))
	mux.Handle("POST /api/categories", s.limited(s.authed(s.handleCreateCategory)))
	mux.Handle("DELETE /api/categories/{id}", s.limited(s.authed(s.handleDeleteCategory)))
	mux.Handle("GET /api/preferences", s.authed(s.handleGetPreferences))
	mux.Handle("PUT /api/preferences", s.limited(s.authed(s.handlePutPreferences)))
	mux.Handle("GET /api/convert", s.authed(s.handleConvert))
	mux.Handle("GET /api/events", s.authed(s.handleEvents))

	var h http.Handler = mux
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.AccessLog(s.ips.ClientIP)(h)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// limited applies the per-client rate limit.
func (s *Server) limited(next http.Handler) http.Handler {
	return s.limiter.Middleware(s.ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, s.ips.ClientIP(r))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	})(next)
}

// Shutdown stops accepting requests and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.b.Ping(ctx); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Readiness check failed", "error", err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
