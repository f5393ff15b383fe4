package promo_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/promo"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type PromoService interface {
	QuotePromo(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Quote, error)
	List(ctx context.Context) ([]*models.PromoCode, error)
	Get(ctx context.Context, id string) (*models.PromoCode, error)
	Create(ctx context.Context, in models.PromoInput) (*models.PromoCode, error)
	Update(ctx context.Context, id string, in models.PromoInput) (*models.PromoCode, error)
	Deactivate(ctx context.Context, id string) (*models.PromoCode, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	Promos PromoService
	Logger *logger.Logger
}

func NewHandler(promos PromoService, log *logger.Logger) *Handler {
	return &Handler{Promos: promos, Logger: log}
}

// RegisterRoutes mounts checkout promo validation.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/promos/validate", h.ValidatePromo)
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/promos", func(r chi.Router) {
		r.Get("/", h.ListPromos)
		r.Post("/", h.CreatePromo)
		r.Get("/{promoId}", h.GetPromo)
		r.Put("/{promoId}", h.UpdatePromo)
		r.Post("/{promoId}/deactivate", h.DeactivatePromo)
		r.Delete("/{promoId}", h.DeletePromo)
	})
}

type validateRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidatePromo quotes a code against a cart subtotal without redeeming it.
// Expected POST request body: {"code": "DISC10", "subtotal": "200000"}
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	quote, err := h.Promos.QuotePromo(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("ValidatePromo %q: %v", req.Code, err))
		utils.WriteError(w, "Promo code not applicable", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo code applied", quote)
}

func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Promos.List(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPromos: %v", err))
		utils.WriteError(w, "Failed to fetch promo codes", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo codes retrieved", promos)
}

func (h *Handler) GetPromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.Promos.Get(r.Context(), chi.URLParam(r, "promoId"))
	if err != nil {
		utils.WriteError(w, "Promo code not found", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo code retrieved", p)
}

func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var in models.PromoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	p, err := h.Promos.Create(r.Context(), in)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreatePromo %q: %v", in.Code, err))
		utils.WriteError(w, "Promo code could not be created", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusCreated, "Promo code created", p)
}

func (h *Handler) UpdatePromo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "promoId")
	var in models.PromoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	p, err := h.Promos.Update(r.Context(), id, in)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdatePromo %s: %v", id, err))
		utils.WriteError(w, "Promo code could not be updated", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo code updated", p)
}

func (h *Handler) DeactivatePromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.Promos.Deactivate(r.Context(), chi.URLParam(r, "promoId"))
	if err != nil {
		utils.WriteError(w, "Promo code could not be deactivated", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Promo code deactivated", p)
}

func (h *Handler) DeletePromo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "promoId")
	if err := h.Promos.Delete(r.Context(), id); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("DeletePromo %s: %v", id, err))
		utils.WriteError(w, "Promo code could not be deleted", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
