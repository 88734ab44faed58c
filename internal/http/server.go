package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	applog "tandem/internal/log"
	"tandem/internal/middleware/ratelimit"
	"tandem/internal/middleware/security"
	"tandem/internal/middleware/trace"
	"tandem/internal/services"
)

// Server wires the JSON API handlers over the service layer.
type Server struct {
	ledger   *services.LedgerService
	stats    *services.StatsService
	auth     *services.AuthService
	settings *services.SettingsService
	logger   *applog.Logger

	httpServer *http.Server
	limiter    *ratelimit.Limiter
}

// NewServer builds the server and its middleware chain.
func NewServer(
	ledger *services.LedgerService,
	stats *services.StatsService,
	auth *services.AuthService,
	settings *services.SettingsService,
	logger *applog.Logger,
	port string,
) *Server {
	s := &Server{
		ledger:   ledger,
		stats:    stats,
		auth:     auth,
		settings: settings,
		logger:   logger.WithComponent(applog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	// Quick-add carries its own API-key auth.
	mux.HandleFunc("GET /api/quick-add", s.handleQuickAddUsage)
	mux.HandleFunc("POST /api/quick-add", s.handleQuickAdd)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/magic-link", s.handleMagicLink)
	mux.HandleFunc("POST /api/auth/magic-link/redeem", s.handleRedeemMagicLink)
	mux.HandleFunc("POST /api/auth/signout", s.requireUser(s.handleSignOut))
	mux.HandleFunc("GET /api/auth/me", s.requireUser(s.handleMe))
	mux.HandleFunc("PATCH /api/auth/profile", s.requireUser(s.handleUpdateProfile))
	mux.HandleFunc("POST /api/auth/password", s.requireUser(s.handleChangePassword))

	mux.HandleFunc("GET /api/users", s.requireUser(s.handleListUsers))
	mux.HandleFunc("PUT /api/users/{id}/balance", s.requireUser(s.handleEditBalance))
	mux.HandleFunc("POST /api/users/{id}/stash", s.requireUser(s.handleAdjustStash))

	mux.HandleFunc("POST /api/transactions", s.requireUser(s.handleAddTransaction))
	mux.HandleFunc("GET /api/transactions", s.requireUser(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/recent", s.requireUser(s.handleRecentTransactions))
	mux.HandleFunc("GET /api/transactions/uncategorized", s.requireUser(s.handleUncategorized))
	mux.HandleFunc("PUT /api/transactions/{id}/category", s.requireUser(s.handleRecategorize))

	mux.HandleFunc("POST /api/categories", s.requireUser(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories", s.requireUser(s.handleListCategories))
	mux.HandleFunc("PATCH /api/categories/{id}", s.requireUser(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.requireUser(s.handleDeleteCategory))
	mux.HandleFunc("PUT /api/categories/{id}/limits/{userID}", s.requireUser(s.handleSetUserLimit))

	mux.HandleFunc("POST /api/debts", s.requireUser(s.handleAddDebt))
	mux.HandleFunc("GET /api/debts", s.requireUser(s.handleListDebts))
	mux.HandleFunc("POST /api/debts/{id}/resolve", s.requireUser(s.handleResolveDebt))

	mux.HandleFunc("GET /api/settings", s.requireUser(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings/registration", s.requireUser(s.handleSetRegistration))
	mux.HandleFunc("PUT /api/settings/balance-edit", s.requireUser(s.handleSetBalanceEdit))
	mux.HandleFunc("PUT /api/settings/stash-name", s.requireUser(s.handleSetStashName))

	mux.HandleFunc("GET /api/stats/dashboard", s.requireUser(s.handleDashboard))
	mux.HandleFunc("GET /api/stats/summaries", s.requireUser(s.handleSummaries))
	mux.HandleFunc("GET /api/stats/budgets", s.requireUser(s.handleBudgets))
	mux.HandleFunc("GET /api/stats/history", s.requireUser(s.handleHistory))
	mux.HandleFunc("GET /api/stats/categories", s.requireUser(s.handleCategoryStats))
	mux.HandleFunc("GET /api/stats/comparison", s.requireUser(s.handleComparison))

	var handler http.Handler = mux
	handler = s.limitMutations(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(extractClientIP).Middleware(handler)
	return handler
}

// limitMutations rate limits writes only; dashboards poll reads freely.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(extractClientIP, s.onRateLimited)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Start blocks serving until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down", applog.FieldOperation, applog.OpShutdown)
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.buildHandler()
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	NewResponse().
		Status(http.StatusTooManyRequests).
		Err(fmt.Errorf("rate limit exceeded")).
		Write(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// A settings read exercises the storage path end to end.
	if _, err := s.settings.Get(r.Context()); err != nil {
		writeErr(w, r, fmt.Errorf("storage not ready: %w", err))
		return
	}
	writeData(w, r, map[string]string{"status": "ready"})
}

// extractClientIP prefers X-Forwarded-For, then X-Real-IP, then the socket
// peer address.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
