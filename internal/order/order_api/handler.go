package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in order.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error)
	CancelOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error)
	ConfirmPayment(ctx context.Context, orderID string, meta models.PaymentMetadata) (*models.Order, error)
	StartPayment(ctx context.Context, orderID string, actor models.Actor) (*models.PaymentIntent, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	RemainingTime(o *models.Order) time.Duration
}

type Handler struct {
	OrderService OrderService
	Logger       *logger.Logger
	now          func() time.Time
}

func NewHandler(orderService OrderService, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the customer order routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListMyOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)
	r.Post("/orders/{orderId}/payment", h.CreatePaymentIntent)
}

// RegisterAdminRoutes mounts order management on an admin router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)
	r.Post("/orders/{orderId}/confirm", h.ConfirmPayment)
}

// RegisterPublicRoutes mounts the unauthenticated payment gateway callback.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/payments/webhook", h.StripeWebhook)
}

func (h *Handler) respond(o *models.Order) models.OrderResponse {
	return models.OrderResponse{
		Order:            o,
		RemainingSeconds: int64(h.OrderService.RemainingTime(o) / time.Second),
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	actor, _ := auth.ActorFrom(r.Context())

	created, err := h.OrderService.CreateOrder(r.Context(), order.CreateOrderInput{
		Actor:      actor,
		ProductID:  req.ProductID,
		TicketType: req.TicketType,
		Quantity:   req.Quantity,
		PromoCode:  req.PromoCode,
		Buyers:     req.Buyers,
	})
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: user=%s product=%s: %v", actor.UserID, req.ProductID, err))
		utils.WriteError(w, "Order could not be placed", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateOrder: order %s created", created.OrderNumber))
	_ = utils.WriteSuccess(w, http.StatusCreated, "Order created", h.respond(created))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	actor, _ := auth.ActorFrom(r.Context())

	o, err := h.OrderService.GetOrder(r.Context(), orderID, actor)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("GetOrder: order=%s: %v", orderID, err))
		utils.WriteError(w, "Order not found", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Order retrieved", h.respond(o))
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	orders, err := h.OrderService.ListOrdersByUser(r.Context(), actor.UserID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyOrders: user=%s: %v", actor.UserID, err))
		utils.WriteError(w, "Failed to fetch orders", err)
		return
	}

	out := make([]models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, h.respond(o))
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Orders retrieved", out)
}

type orderPage struct {
	Orders []models.OrderResponse `json:"orders"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ListOrders is the admin listing.
// Query parameters: status, product_id, user_id, limit, offset.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.OrderFilter{
		Status:    models.OrderStatus(q.Get("status")),
		ProductID: q.Get("product_id"),
		UserID:    q.Get("user_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid limit", err.Error()))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid offset", err.Error()))
		return
	}

	orders, total, err := h.OrderService.ListOrders(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		utils.WriteError(w, "Failed to fetch orders", err)
		return
	}

	page := orderPage{Orders: make([]models.OrderResponse, 0, len(orders)), Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for _, o := range orders {
		page.Orders = append(page.Orders, h.respond(o))
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Orders retrieved", page)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	actor, _ := auth.ActorFrom(r.Context())

	o, err := h.OrderService.CancelOrder(r.Context(), orderID, actor)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CancelOrder: order=%s by=%s: %v", orderID, actor.UserID, err))
		utils.WriteError(w, "Could not cancel order", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: order %s cancelled by %s", o.OrderNumber, actor.UserID))
	_ = utils.WriteSuccess(w, http.StatusOK, "Order cancelled", h.respond(o))
}

type confirmRequest struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

// ConfirmPayment records a payment taken outside the gateway.
// Expected POST request body: {"method": "cash", "transaction_id": "..."}; both optional.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req confirmRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
			return
		}
	}
	if req.Method == "" {
		req.Method = "manual"
	}
	if req.TransactionID == "" {
		txID, err := utils.GenerateTransactionID(h.now())
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("ConfirmPayment: order=%s: %v", orderID, err))
			_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Payment could not be confirmed", "transaction id unavailable"))
			return
		}
		req.TransactionID = txID
	}

	o, err := h.OrderService.ConfirmPayment(r.Context(), orderID, models.PaymentMetadata{
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("ConfirmPayment: order=%s: %v", orderID, err))
		utils.WriteError(w, "Payment could not be confirmed", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Payment confirmed", h.respond(o))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	return n, nil
}
