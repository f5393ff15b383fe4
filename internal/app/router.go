package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	analytics_api "ms-storefront/internal/analytics/api"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/catalog/catalog_api"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order/order_api"
	"ms-storefront/internal/promo/promo_api"
	"ms-storefront/internal/tickets/ticket_api"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewVerifier picks the bearer token verifier for the configured auth mode.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	switch cfg.Mode {
	case "oidc":
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	case "jwt":
		return auth.NewHMACVerifier(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.Mode)
	}
}

// Router builds the HTTP surface:
//
//	/healthz                 liveness and database ping
//	/api/products...         public catalog
//	/api/payments/webhook    gateway callback
//	/api/...                 authenticated customer routes
//	/api/admin/...           admin routes
func (a *App) Router(verifier auth.TokenVerifier) http.Handler {
	orderHandler := order_api.NewHandler(a.Orders, a.Logger)
	sseHandler := order_api.NewSSEHandler(a.Logger, a.Events)
	ticketHandler := ticket_api.NewHandler(a.Tickets, a.Logger)
	catalogHandler := catalog_api.NewHandler(a.Catalog, a.Logger)
	promoHandler := promo_api.NewHandler(a.Promos, a.Logger)
	dashboardHandler := analytics_api.NewHandler(a.Analytics, a.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.health)

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		catalogHandler.RegisterRoutes(r)
		orderHandler.RegisterPublicRoutes(r)

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, a.Profiles, a.Logger))

			orderHandler.RegisterRoutes(r)
			ticketHandler.RegisterRoutes(r)
			promoHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin(a.Logger))
				orderHandler.RegisterAdminRoutes(r)
				sseHandler.RegisterAdminRoutes(r)
				ticketHandler.RegisterAdminRoutes(r)
				catalogHandler.RegisterAdminRoutes(r)
				promoHandler.RegisterAdminRoutes(r)
				dashboardHandler.RegisterRoutes(r)
			})
		})
	})
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok"}
	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = err.Error()
		_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Unhealthy", "database unreachable"))
		return
	}
	if a.Redis != nil {
		status["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "degraded"
		}
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Healthy", status)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
		})
	}
}
