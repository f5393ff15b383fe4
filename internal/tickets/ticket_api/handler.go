package ticket_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type TicketService interface {
	TicketsForOrder(ctx context.Context, orderID string, actor models.Actor) ([]*models.Ticket, *models.Order, error)
	QRCode(ctx context.Context, code string, actor models.Actor) ([]byte, error)
	CheckIn(ctx context.Context, req models.CheckInRequest) (*models.Ticket, error)
}

type Handler struct {
	TicketService TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

// RegisterRoutes mounts the customer ticket routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/{orderId}/tickets", h.ListTicketsByOrder)
	r.Get("/tickets/{ticketCode}/qr", h.TicketQR)
}

// RegisterAdminRoutes mounts door check-in on an admin router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/tickets/checkin", h.CheckinTicket)
}

type orderTickets struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Status      models.OrderStatus `json:"status"`
	Usable      bool               `json:"usable"`
	Tickets     []*models.Ticket   `json:"tickets"`
}

func (h *Handler) ListTicketsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	actor, _ := auth.ActorFrom(r.Context())

	tickets, order, err := h.TicketService.TicketsForOrder(r.Context(), orderID, actor)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTicketsByOrder: order=%s: %v", orderID, err))
		utils.WriteError(w, "Failed to fetch tickets", err)
		return
	}

	_ = utils.WriteSuccess(w, http.StatusOK, "Tickets retrieved", orderTickets{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Usable:      order.Status == models.OrderPaid,
		Tickets:     tickets,
	})
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticketCode")
	actor, _ := auth.ActorFrom(r.Context())

	png, err := h.TicketService.QRCode(r.Context(), code, actor)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: ticket=%s: %v", code, err))
		utils.WriteError(w, "Failed to render QR code", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// CheckinTicket admits a ticket at the door.
// Expected POST request body: {"ticket_code": "..."} or {"qr_data": "..."}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	ticket, err := h.TicketService.CheckIn(r.Context(), req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CheckinTicket: %v", err))
		utils.WriteError(w, "Check-in failed", err)
		return
	}
	_ = utils.WriteSuccess(w, http.StatusOK, "Checkin successful", ticket)
}
