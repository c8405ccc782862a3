package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/infra/resilience"
	"github.com/boddenberg/planeja-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles the application services the router dispatches to.
type Services struct {
	Auth       *service.AuthService
	Wallets    *service.WalletService
	Accounts   *service.AccountService
	Categories *service.CategoryService
	Ledger     *service.Ledger
	Dashboard  *service.DashboardService
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the outer middleware stack.
type Options struct {
	AllowedOrigins []string
	// Bulkhead caps concurrent /v1 requests. Nil disables the cap.
	Bulkhead *resilience.Bulkhead
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, db Pinger, metrics *observability.Metrics, opts Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(db, logger))
	r.Get("/readyz", readyzHandler(db, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.Bulkhead != nil {
			r.Use(BulkheadMiddleware(opts.Bulkhead, logger))
		}

		// =============================================
		// Métricas do livro-caixa
		// GET /v1/metrics/ledger
		// =============================================
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))

		if svcs.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "Serviço de autenticação indisponível")
			}))
			return
		}

		// =============================================
		// 1. Autenticação
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(svcs.Auth, logger))
			r.Post("/login", authLoginHandler(svcs.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svcs.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(svcs.Auth, logger))
				r.Post("/logout", authLogoutHandler(svcs.Auth, logger))
				r.Get("/me", authMeHandler(svcs.Auth, logger))
				r.Delete("/me", authDeleteMeHandler(svcs.Auth, logger))
			})
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// =============================================
			// 2. Carteiras
			// =============================================
			r.Route("/wallets", func(r chi.Router) {
				r.Get("/", listWalletsHandler(svcs.Wallets, logger))
				r.Post("/", createWalletHandler(svcs.Wallets, logger))
				r.Get("/{id}", getWalletHandler(svcs.Wallets, logger))
				r.Patch("/{id}", updateWalletHandler(svcs.Wallets, logger))
				r.Delete("/{id}", deleteWalletHandler(svcs.Wallets, logger))

				r.Get("/{id}/accounts", listWalletAccountsHandler(svcs.Accounts, logger))
				r.Post("/{id}/accounts", createAccountHandler(svcs.Accounts, logger))
			})

			// =============================================
			// 3. Contas
			// =============================================
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", listAccountsHandler(svcs.Accounts, logger))
				r.Get("/{id}", getAccountHandler(svcs.Accounts, logger))
				r.Patch("/{id}", updateAccountHandler(svcs.Accounts, logger))
				r.Delete("/{id}", deleteAccountHandler(svcs.Accounts, logger))
			})

			// =============================================
			// 4. Categorias
			// =============================================
			r.Route("/categories", func(r chi.Router) {
				r.Get("/", listCategoriesHandler(svcs.Categories, logger))
				r.Post("/", createCategoryHandler(svcs.Categories, logger))
				r.Get("/{id}", getCategoryHandler(svcs.Categories, logger))
				r.Patch("/{id}", updateCategoryHandler(svcs.Categories, logger))
				r.Delete("/{id}", deleteCategoryHandler(svcs.Categories, logger))
			})

			// =============================================
			// 5. Transações
			// =============================================
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", listTransactionsHandler(svcs.Ledger, logger))
				r.Post("/", createTransactionHandler(svcs.Ledger, logger))
				r.Get("/summary", summaryHandler(svcs.Ledger, logger))
				r.Get("/{id}", getTransactionHandler(svcs.Ledger, logger))
				r.Patch("/{id}", updateTransactionHandler(svcs.Ledger, logger))
				r.Delete("/{id}", deleteTransactionHandler(svcs.Ledger, logger))
			})

			// =============================================
			// 6. Dashboard
			// =============================================
			r.Get("/dashboard", dashboardHandler(svcs.Dashboard, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(db Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "planeja-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if db != nil {
			start := time.Now()
			err := db.Ping(r.Context())
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				logger.Warn("healthz: database ping failed", zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "sqlite", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(db Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				logger.Warn("readyz: database not ready", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
