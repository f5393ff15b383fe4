package catalog_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CatalogService interface {
	ListActive(ctx context.Context) ([]*models.Product, error)
	GetActive(ctx context.Context, id string) (*models.Product, error)
	ListAll(ctx context.Context) ([]*models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, in models.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id string, in models.ProductInput) (*models.Product, error)
	AdjustStock(ctx context.Context, id, ticketType string, delta int) (*models.Product, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	Catalog CatalogService
	Logger  *logger.Logger
}

func NewHandler(catalog CatalogService, log *logger.Logger) *Handler {
	return &Handler{Catalog: catalog, Logger: log}
}

// RegisterRoutes mounts storefront browsing; no authentication needed.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/products/{productId}", h.GetProduct)
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.AdminListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{productId}", h.AdminGetProduct)
		r.Put("/{productId}", h.UpdateProduct)
		r.Delete("/{productId}", h.DeleteProduct)
		r.Post("/{productId}/stock", h.AdjustStock)
		r.Post("/{productId}/activate", h.setActive(true))
		r.Post("/{productId}/deactivate", h.setActive(false))
	})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListActive(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListProducts: %v", err))
		utils.WriteError(w, "Failed to fetch products", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Products retrieved", products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	product, err := h.Catalog.GetActive(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Product not found", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Product retrieved", product)
}

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListAll(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AdminListProducts: %v", err))
		utils.WriteError(w, "Failed to fetch products", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Products retrieved", products)
}

func (h *Handler) AdminGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		utils.WriteError(w, "Product not found", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Product retrieved", product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	product, err := h.Catalog.Create(r.Context(), in)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateProduct: %v", err))
		utils.WriteError(w, "Product could not be created", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusCreated, "Product created", product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	var in models.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	product, err := h.Catalog.Update(r.Context(), id, in)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateProduct %s: %v", id, err))
		utils.WriteError(w, "Product could not be updated", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Product updated", product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	if err := h.Catalog.Delete(r.Context(), id); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("DeleteProduct %s: %v", id, err))
		utils.WriteError(w, "Product could not be deleted", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	TicketType string `json:"ticket_type"`
	Delta      int    `json:"delta"`
}

// AdjustStock adds (positive delta) or withdraws seats of one ticket type.
// Expected POST request body: {"ticket_type": "VIP", "delta": -5}
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	product, err := h.Catalog.AdjustStock(r.Context(), id, req.TicketType, req.Delta)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("AdjustStock %s/%s by %d: %v", id, req.TicketType, req.Delta, err))
		utils.WriteError(w, "Stock could not be adjusted", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Stock adjusted", product)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "productId")
		if err := h.Catalog.SetActive(r.Context(), id, active); err != nil {
			utils.WriteError(w, "Product could not be updated", err)
			return
		}
		_ = utils.WriteSuccess(w, http.StatusOK, "Product updated", map[string]any{"id": id, "is_active": active})
	}
}
