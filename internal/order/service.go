package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/promo"
	"ms-storefront/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DBLayer interface {
	InsertOrder(ctx context.Context, order *models.Order, tickets []*models.Ticket) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error)
	MarkPaid(ctx context.Context, id string, meta models.PaymentMetadata, now time.Time) (*models.Order, error)
	Finalize(ctx context.Context, t db.Transition) (*models.Order, error)
	ReserveStock(ctx context.Context, productID, ticketType string, qty int) error
	ReleaseStock(ctx context.Context, productID, ticketType string, qty int) error
	ConsumePromo(ctx context.Context, promoID string) error
	ReleasePromo(ctx context.Context, promoID string) error
}

type Catalog interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	Invalidate(ctx context.Context)
}

type PromoValidator interface {
	ValidatePromo(ctx context.Context, code string, now time.Time) (*models.PromoCode, error)
}

type TicketIssuer interface {
	Issue(order *models.Order, buyers []models.Buyer) ([]*models.Ticket, error)
}

// ReservationTimers mirror each pending order's payment deadline outside the
// database so expiry can fire before the next sweep.
type ReservationTimers interface {
	Schedule(ctx context.Context, orderID string, expiry time.Time) error
	Clear(ctx context.Context, orderID string) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type Deps struct {
	DB       DBLayer
	Catalog  Catalog
	Promos   PromoValidator
	Tickets  TicketIssuer
	Timers   ReservationTimers
	Events   EventPublisher
	Payments PaymentGateway
	Logger   *logger.Logger
}

// OrderService owns the order lifecycle: pending -> paid | cancelled | expired.
// It keeps no mutable state of its own; every counter lives in the database
// and is changed with conditional updates.
type OrderService struct {
	DB       DBLayer
	Catalog  Catalog
	Promos   PromoValidator
	Tickets  TicketIssuer
	Timers   ReservationTimers
	Events   EventPublisher
	Payments PaymentGateway
	Logger   *logger.Logger

	window time.Duration
	now    func() time.Time
}

func NewOrderService(deps Deps, reservationWindow time.Duration) *OrderService {
	return &OrderService{
		DB:       deps.DB,
		Catalog:  deps.Catalog,
		Promos:   deps.Promos,
		Tickets:  deps.Tickets,
		Timers:   deps.Timers,
		Events:   deps.Events,
		Payments: deps.Payments,
		Logger:   deps.Logger,
		window:   reservationWindow,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *OrderService) SetClock(now func() time.Time) {
	s.now = now
}

type CreateOrderInput struct {
	Actor      models.Actor
	ProductID  string
	TicketType string
	Quantity   int
	PromoCode  string
	Buyers     []models.Buyer
}

// ---------------- CREATE ----------------

// CreateOrder validates everything up front, then reserves stock, consumes the
// promo and persists the order with its tickets. Any failure after the stock
// reservation undoes the earlier steps in reverse order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.Actor.UserID == "" {
		return nil, fmt.Errorf("create order without a user: %w", models.ErrForbidden)
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidInput)
	}

	buyers, err := ValidateBuyers(in.Buyers, in.Quantity)
	if err != nil {
		return nil, err
	}

	product, err := s.Catalog.Get(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("product %s: %w", in.ProductID, models.ErrNotFound)
	}
	tier := product.FindTicketType(in.TicketType)
	if tier == nil {
		return nil, fmt.Errorf("ticket type %q on product %s: %w", in.TicketType, product.ID, models.ErrNotFound)
	}

	now := s.now()
	var pc *models.PromoCode
	if strings.TrimSpace(in.PromoCode) != "" {
		if pc, err = s.Promos.ValidatePromo(ctx, in.PromoCode, now); err != nil {
			return nil, err
		}
	}

	subtotal := tier.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	discount, err := promo.CalculateDiscount(pc, subtotal)
	if err != nil {
		return nil, err
	}

	if err := s.DB.ReserveStock(ctx, product.ID, tier.Name, in.Quantity); err != nil {
		return nil, err
	}
	undo := []compensation{{
		name: "release stock",
		run: func(ctx context.Context) error {
			return s.DB.ReleaseStock(ctx, product.ID, tier.Name, in.Quantity)
		},
	}}

	var promoID *string
	if pc != nil {
		if err := s.DB.ConsumePromo(ctx, pc.ID); err != nil {
			return nil, s.compensate(ctx, "", undo, err)
		}
		id := pc.ID
		promoID = &id
		undo = append(undo, compensation{
			name: "release promo " + pc.Code,
			run:  func(ctx context.Context) error { return s.DB.ReleasePromo(ctx, id) },
		})
	}

	number, err := utils.GenerateOrderNumber(now)
	if err != nil {
		return nil, s.compensate(ctx, "", undo, err)
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		OrderNumber:    number,
		UserID:         in.Actor.UserID,
		CustomerEmail:  in.Actor.Email,
		ProductID:      product.ID,
		TicketType:     tier.Name,
		UnitPrice:      tier.Price,
		Quantity:       in.Quantity,
		Subtotal:       subtotal,
		PromoCodeID:    promoID,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Sub(discount),
		Status:         models.OrderPending,
		PaymentExpiry:  now.Add(s.window),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.SetBuyers(buyers)

	tickets, err := s.Tickets.Issue(order, buyers)
	if err != nil {
		return nil, s.compensate(ctx, order.ID, undo, err)
	}
	if err := s.DB.InsertOrder(ctx, order, tickets); err != nil {
		return nil, s.compensate(ctx, order.ID, undo, err)
	}
	order.Tickets = tickets

	s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("%s %dx %s/%s total=%s expires=%s",
		order.OrderNumber, order.Quantity, product.Name, tier.Name, order.TotalAmount.StringFixed(2), order.PaymentExpiry.Format(time.RFC3339)))

	s.Catalog.Invalidate(ctx)
	if s.Timers != nil {
		if err := s.Timers.Schedule(ctx, order.ID, order.PaymentExpiry); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("Failed to schedule reservation timer for %s: %v", order.ID, err))
		}
	}
	s.publish(ctx, models.EventOrderCreated, order)
	return order, nil
}

type compensation struct {
	name string
	run  func(ctx context.Context) error
}

// compensate runs undo steps newest first. Steps keep running after a failure;
// every failure is logged for reconciliation and joined into the result.
func (s *OrderService) compensate(ctx context.Context, orderID string, undo []compensation, cause error) error {
	ctx = context.WithoutCancel(ctx)
	errs := []error{cause}
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i].run(ctx); err != nil {
			s.Logger.LogReconcile(orderID, fmt.Sprintf("%s failed after %v: %v", undo[i].name, cause, err))
			errs = append(errs, fmt.Errorf("compensation %s: %w", undo[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// ---------------- PAYMENT ----------------

// ConfirmPayment moves a pending order to paid. Repeating the call with the
// same transaction id returns the paid order unchanged. A payment arriving
// after the deadline expires the order instead.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string, meta models.PaymentMetadata) (*models.Order, error) {
	if strings.TrimSpace(meta.TransactionID) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", models.ErrInvalidInput)
	}

	now := s.now()
	order, err := s.DB.MarkPaid(ctx, orderID, meta, now)
	if err == nil {
		s.Logger.LogOrder("PAID", order.ID, fmt.Sprintf("method=%s txn=%s", meta.Method, meta.TransactionID))
		s.clearTimer(ctx, order.ID)
		s.publish(ctx, models.EventOrderPaid, order)
		return order, nil
	}
	if !errors.Is(err, models.ErrOrderNotPending) {
		return nil, err
	}

	switch {
	case order.Status == models.OrderPaid && order.PaymentTxID == meta.TransactionID:
		return order, nil
	case order.Status == models.OrderPending:
		s.Logger.LogOrder("PAYMENT_LATE", order.ID, fmt.Sprintf("payment %s arrived after %s", meta.TransactionID, order.PaymentExpiry.Format(time.RFC3339)))
		if _, expErr := s.ExpireOrder(ctx, orderID); expErr != nil && !errors.Is(expErr, models.ErrOrderNotPending) {
			s.Logger.Error("ORDER", fmt.Sprintf("Failed to expire late-paid order %s: %v", orderID, expErr))
		}
		return nil, fmt.Errorf("payment window closed: %w", &models.StateError{OrderID: orderID, Status: models.OrderExpired})
	default:
		return nil, err
	}
}

// HandlePaymentOutcome applies a gateway verdict. Only success changes the
// order; every other outcome leaves it pending for retry or expiry.
func (s *OrderService) HandlePaymentOutcome(ctx context.Context, orderID string, result models.PaymentResult) (*models.Order, error) {
	switch result.Outcome {
	case models.PaymentSucceeded:
		return s.ConfirmPayment(ctx, orderID, result.Metadata)
	case models.PaymentPending, models.PaymentFailed, models.PaymentAbandoned:
		s.Logger.LogOrder("PAYMENT_"+strings.ToUpper(string(result.Outcome)), orderID,
			fmt.Sprintf("txn=%s order stays pending", result.Metadata.TransactionID))
		return s.DB.GetOrder(ctx, orderID)
	default:
		return nil, fmt.Errorf("%w: unknown payment outcome %q", models.ErrInvalidInput, result.Outcome)
	}
}

// ---------------- CANCEL / EXPIRE ----------------

// CancelOrder releases a pending order's stock and promo. Customers may only
// cancel their own orders.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, models.ErrForbidden)
	}
	if order.Status != models.OrderPending {
		return nil, &models.StateError{OrderID: order.ID, Status: order.Status}
	}

	cancelled, err := s.DB.Finalize(ctx, db.Transition{
		OrderID:     orderID,
		To:          models.OrderCancelled,
		CancelledBy: actor.UserID,
		Now:         s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.afterRelease(ctx, cancelled, models.EventOrderCancelled, "by "+actor.UserID)
	return cancelled, nil
}

// ExpireOrder closes a pending order whose payment window has passed. It is
// safe to call repeatedly and concurrently; only the first call has effect.
func (s *OrderService) ExpireOrder(ctx context.Context, orderID string) (*models.Order, error) {
	expired, err := s.DB.Finalize(ctx, db.Transition{
		OrderID: orderID,
		To:      models.OrderExpired,
		Now:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.afterRelease(ctx, expired, models.EventOrderExpired, "payment window closed")
	return expired, nil
}

// SweepExpired expires up to limit overdue orders and reports how many it closed.
func (s *OrderService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.DB.ListExpiredPending(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if _, err := s.ExpireOrder(ctx, id); err != nil {
			if errors.Is(err, models.ErrOrderNotPending) || errors.Is(err, models.ErrOrderNotExpired) {
				continue
			}
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to expire order %s: %v", id, err))
			continue
		}
		expired++
	}
	return expired, nil
}

// OnReservationExpired is the callback for fired reservation timers. Orders
// that were paid or cancelled in the meantime are ignored.
func (s *OrderService) OnReservationExpired(ctx context.Context, orderID string) {
	if _, err := s.ExpireOrder(ctx, orderID); err != nil {
		if errors.Is(err, models.ErrOrderNotPending) || errors.Is(err, models.ErrOrderNotExpired) || errors.Is(err, models.ErrNotFound) {
			s.Logger.Debug("ORDER", fmt.Sprintf("Timer for %s ignored: %v", orderID, err))
			return
		}
		s.Logger.Error("ORDER", fmt.Sprintf("Failed to expire order %s from timer: %v", orderID, err))
	}
}

func (s *OrderService) afterRelease(ctx context.Context, order *models.Order, kind models.OrderEventType, reason string) {
	s.Logger.LogOrder(strings.ToUpper(string(order.Status)), order.ID,
		fmt.Sprintf("%s released %dx %s (%s)", order.OrderNumber, order.Quantity, order.TicketType, reason))
	s.Catalog.Invalidate(ctx)
	s.clearTimer(ctx, order.ID)
	s.publish(ctx, kind, order)
}

func (s *OrderService) clearTimer(ctx context.Context, orderID string) {
	if s.Timers == nil {
		return
	}
	if err := s.Timers.Clear(ctx, orderID); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("Failed to clear reservation timer for %s: %v", orderID, err))
	}
}

func (s *OrderService) publish(ctx context.Context, kind models.OrderEventType, order *models.Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishOrderEvent(ctx, models.NewOrderEvent(kind, order, s.now())); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", kind, order.ID, err))
	}
}

// ---------------- READS ----------------

// GetOrder returns the order if actor may see it.
func (s *OrderService) GetOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return visibleTo(order, actor)
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, number string, actor models.Actor) (*models.Order, error) {
	order, err := s.DB.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return visibleTo(order, actor)
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.DB.ListOrders(ctx, f)
}

// RemainingTime is the payment countdown for order as of now.
func (s *OrderService) RemainingTime(order *models.Order) time.Duration {
	return order.RemainingTime(s.now())
}

func visibleTo(order *models.Order, actor models.Actor) (*models.Order, error) {
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, fmt.Errorf("order %s: %w", order.ID, models.ErrNotFound)
	}
	return order, nil
}
