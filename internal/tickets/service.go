package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	qr "ms-storefront/internal/tickets/qr_generator"
)

type DBLayer interface {
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error)
	CheckIn(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

// OrderReader resolves an order the caller is allowed to see.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error)
}

type TicketService struct {
	DB     DBLayer
	Orders OrderReader
	QR     *qr.QRGenerator
	Logger *logger.Logger
	now    func() time.Time
}

func NewTicketService(db DBLayer, orders OrderReader, qrGen *qr.QRGenerator, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:     db,
		Orders: orders,
		QR:     qrGen,
		Logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TicketsForOrder lists an order's tickets. Tickets exist from order creation
// but are only usable once the order is paid.
func (s *TicketService) TicketsForOrder(ctx context.Context, orderID string, actor models.Actor) ([]*models.Ticket, *models.Order, error) {
	order, err := s.Orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, nil, err
	}
	tickets, err := s.DB.GetTicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return tickets, order, nil
}

// QRCode renders the ticket's encrypted QR image for its owner.
func (s *TicketService) QRCode(ctx context.Context, code string, actor models.Actor) ([]byte, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if ticket.Order == nil || (!actor.IsAdmin() && ticket.Order.UserID != actor.UserID) {
		return nil, fmt.Errorf("ticket %s: %w", code, models.ErrNotFound)
	}
	if ticket.Order.Status != models.OrderPaid {
		return nil, fmt.Errorf("ticket %s on %s order: %w", ticket.TicketCode, ticket.Order.Status, models.ErrTicketNotUsable)
	}

	png, err := s.QR.GenerateEncryptedQR(models.QRPayload{
		TicketCode: ticket.TicketCode,
		OrderID:    ticket.OrderID,
		BuyerIndex: ticket.BuyerIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("generate QR for %s: %w", ticket.TicketCode, err)
	}
	return png, nil
}

// CheckIn admits a ticket at the door, by code or by scanned QR data. A
// ticket can be checked in once.
func (s *TicketService) CheckIn(ctx context.Context, req models.CheckInRequest) (*models.Ticket, error) {
	code := strings.TrimSpace(req.TicketCode)
	var payload *models.QRPayload
	if req.QRData != "" {
		p, err := s.QR.Decrypt(strings.TrimSpace(req.QRData))
		if err != nil {
			s.Logger.LogSecurity("INVALID_QR", err.Error())
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		if code != "" && !strings.EqualFold(code, p.TicketCode) {
			return nil, fmt.Errorf("%w: ticket code does not match QR data", models.ErrInvalidInput)
		}
		payload = p
		code = p.TicketCode
	}
	if code == "" {
		return nil, fmt.Errorf("%w: ticket_code or qr_data is required", models.ErrInvalidInput)
	}

	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if payload != nil && (payload.OrderID != ticket.OrderID || payload.BuyerIndex != ticket.BuyerIndex) {
		s.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("ticket %s presented with order %s", ticket.TicketCode, payload.OrderID))
		return nil, fmt.Errorf("%w: QR data does not match ticket", models.ErrInvalidInput)
	}
	if ticket.Order == nil || ticket.Order.Status != models.OrderPaid {
		status := models.OrderStatus("unknown")
		if ticket.Order != nil {
			status = ticket.Order.Status
		}
		return nil, fmt.Errorf("ticket %s on %s order: %w", ticket.TicketCode, status, models.ErrTicketNotUsable)
	}
	if ticket.CheckedInAt != nil {
		return nil, alreadyCheckedIn(ticket)
	}

	now := s.now()
	ok, err := s.DB.CheckIn(ctx, ticket.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, getErr := s.DB.GetTicketByCode(ctx, ticket.TicketCode)
		if getErr == nil && latest.CheckedInAt != nil {
			return nil, alreadyCheckedIn(latest)
		}
		return nil, errors.Join(fmt.Errorf("ticket %s: %w", ticket.TicketCode, models.ErrTicketNotUsable), getErr)
	}

	ticket.CheckedInAt = &now
	s.Logger.Info("TICKET", fmt.Sprintf("Checked in %s (order %s, buyer %d)", ticket.TicketCode, ticket.OrderID, ticket.BuyerIndex))
	return ticket, nil
}

func alreadyCheckedIn(t *models.Ticket) error {
	return fmt.Errorf("ticket %s checked in at %s: %w", t.TicketCode, t.CheckedInAt.UTC().Format(time.RFC3339), models.ErrTicketAlreadyCheckedIn)
}
