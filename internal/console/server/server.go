package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/novel-moderation/internal/console/handler"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка операторских токенов (RS256)
	authValidator auth.TokenValidator

	authHandler   *handler.AuthHandler      // /auth/token
	ledgerHandler *handler.LedgerHandler    // /v1/ledger (human review)
	dashHandler   *handler.DashboardHandler // /api/v1/dashboard
	auditHandler  *handler.AuditHandler     // /v1/audit (журнал прогонов)
}

// NewConsoleServer инициализирует API операторов модерации со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	ledgerH *handler.LedgerHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		authHandler:   authH,
		ledgerHandler: ledgerH,
		dashHandler:   dashH,
		auditHandler:  auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeLedgerRead))

			r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)
			r.Get("/v1/audit", s.auditHandler.GetRuns)
			r.Get("/v1/ledger", s.ledgerHandler.List)
			r.Get("/v1/ledger/{id}", s.ledgerHandler.Get)
		})

		// Human-in-the-loop
		r.With(auth.RequireScope(domain.ScopeLedgerDecide)).
			Post("/v1/ledger/{id}/decide", s.ledgerHandler.Decide)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
