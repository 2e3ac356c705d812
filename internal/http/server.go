package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "fintrix/internal/log"
	"fintrix/internal/middleware/ratelimit"
	"fintrix/internal/middleware/security"
	"fintrix/internal/middleware/trace"
	"fintrix/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the API calls into.
type Services struct {
	Transactions *services.TransactionService
	Accounts     *services.AccountService
	Budgets      *services.BudgetService
	Users        *services.UserService
}

// Options tunes the outer middleware. Zero values pick defaults.
type Options struct {
	// MutationsPerMinute bounds mutating requests per client IP.
	MutationsPerMinute int
}

type Server struct {
	http.Server
	store  Pinger
	svc    Services
	logger *applog.Logger
	access *applog.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	startedAt    time.Time
	transactions int64 // successful ledger mutations, for /metrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Pinger, svc Services, logger *applog.Logger, opts Options) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		store:            store,
		svc:              svc,
		logger:           logger,
		access:           applog.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.MutationsPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		startedAt:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/users/init", s.handleInitUser)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("POST /api/accounts/{id}/default", s.handleSetDefaultAccount)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", s.handleListAccountTransactions)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /api/transactions/extracted", s.handleCreateExtracted)
	mux.HandleFunc("POST /api/transactions/delete", s.handleDeleteTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)

	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budget", s.handleUpsertBudget)

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, ratelimit.MutatingOnly,
		func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded, please try again later").Write(w)
		})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireUser writes a 401 and returns false when the caller identity is
// missing.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := userID(r)
	if id == "" {
		UnauthorizedError().Write(w)
		return "", false
	}
	return id, true
}

func (s *Server) countMutation() {
	atomic.AddInt64(&s.transactions, 1)
}
