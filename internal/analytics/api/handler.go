package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Dashboard interface {
	Overview(ctx context.Context) (*analytics.Overview, error)
	ProductSales(ctx context.Context, productID string) (*analytics.ProductSales, error)
	PromoUsage(ctx context.Context) ([]analytics.PromoUsage, error)
	DailySales(ctx context.Context, from, to time.Time) ([]analytics.DailySales, error)
}

// Handler serves the admin dashboard.
type Handler struct {
	service Dashboard
	logger  *logger.Logger
	now     func() time.Time
}

func NewHandler(service Dashboard, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the dashboard on an admin router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/overview", h.GetOverview)
		r.Get("/products/{productId}", h.GetProductSales)
		r.Get("/promos", h.GetPromoUsage)
		r.Get("/daily-sales", h.GetDailySales)
	})
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("ANALYTICS", fmt.Sprintf("overview: %v", err))
		utils.WriteError(w, "Failed to load dashboard", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Dashboard overview", overview)
}

func (h *Handler) GetProductSales(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	sales, err := h.service.ProductSales(r.Context(), productID)
	if err != nil {
		h.logger.Error("ANALYTICS", fmt.Sprintf("product sales %s: %v", productID, err))
		utils.WriteError(w, "Failed to load product sales", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Product sales", sales)
}

func (h *Handler) GetPromoUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.PromoUsage(r.Context())
	if err != nil {
		h.logger.Error("ANALYTICS", fmt.Sprintf("promo usage: %v", err))
		utils.WriteError(w, "Failed to load promo usage", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo usage", usage)
}

// GetDailySales accepts from and to as YYYY-MM-DD (to inclusive) and
// defaults to the last 30 days.
func (h *Handler) GetDailySales(w http.ResponseWriter, r *http.Request) {
	today := h.now().Truncate(24 * time.Hour)
	from, to := today.AddDate(0, 0, -29), today

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.DateOnly, v); err != nil {
			_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid from date", err.Error()))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.DateOnly, v); err != nil {
			_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid to date", err.Error()))
			return
		}
	}

	sales, err := h.service.DailySales(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Warn("ANALYTICS", fmt.Sprintf("daily sales: %v", err))
		utils.WriteError(w, "Failed to load daily sales", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Daily sales", sales)
}
