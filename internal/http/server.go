package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Services are the engine components the API serves.
type Services struct {
	Transactions *services.TransactionService
	Catalog      *services.CatalogService
	Alerts       *services.AlertService
	Recurring    *services.RecurringProcessor
	Reconciler   *services.Reconciler
	Overview     *services.OverviewService
}

// Options tune the server's request handling.
type Options struct {
	// RateLimitRPM caps requests per owner per minute; 0 disables limiting.
	RateLimitRPM int

	// IdempotencyTTL is how long Idempotency-Key responses are replayed
	// (default: 24h).
	IdempotencyTTL time.Duration

	Logger *log.Logger

	// Now is used for on-demand recurring passes (default: time.Now).
	Now func() time.Time
}

type Server struct {
	http.Server
	svc         Services
	logger      *log.Logger
	now         func() time.Time
	limiter     *ratelimit.Limiter
	idempotency *cache.Idempotency
	caches      *cache.Manager
	trace       *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.ForComponent(log.ComponentHTTP)
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		svc:         svc,
		logger:      logger.WithComponent(log.ComponentHTTP),
		now:         opts.Now,
		idempotency: cache.NewIdempotency(10_000, opts.IdempotencyTTL),
		caches:      cache.NewManager(logger),
	}
	s.caches.Register(s.idempotency)
	s.caches.StartCleanup(10 * time.Minute)

	api := http.NewServeMux()
	s.routes(api)

	var apiHandler http.Handler = api
	if opts.RateLimitRPM > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM})
		apiHandler = s.limiter.Middleware(rateLimitKey, logger)(apiHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("/api/", apiHandler)

	s.trace = trace.NewMiddleware(logger, security.ClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.trace.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories/seed", s.handleSeedCategories)

	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeactivateAccount)
	mux.HandleFunc("GET /api/accounts/{id}/reconcile", s.handleReconcileAccount)

	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeactivateBudget)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /api/recurring", s.handleCreateRecurring)
	mux.HandleFunc("GET /api/recurring", s.handleListRecurring)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeactivateRecurring)
	mux.HandleFunc("POST /api/recurring/process", s.handleProcessRecurring)

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/read", s.handleMarkAlertRead)
	mux.HandleFunc("POST /api/alerts/read-all", s.handleMarkAllAlertsRead)

	mux.HandleFunc("GET /api/overview", s.handleOverview)
}

// rateLimitKey limits per owner, falling back to the client address for
// requests that name none.
func rateLimitKey(r *http.Request) string {
	if owner, err := ownerFrom(r); err == nil {
		return "owner:" + owner
	}
	return "ip:" + security.ClientIP(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withOwner resolves the owner or answers 400.
func withOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, r, "owner", err)
		return "", false
	}
	return owner, true
}
