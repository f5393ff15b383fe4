package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/models"
)

// PaymentGateway is the seam to the payment provider. The engine never talks
// to a provider directly; it only consumes PaymentResults.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, order *models.Order) (*models.PaymentIntent, error)
	// ParseWebhook verifies and decodes a provider callback. ok is false for
	// event types that carry no payment verdict.
	ParseWebhook(payload []byte, signature string) (orderID string, result models.PaymentResult, ok bool, err error)
}

// WebhookError separates what a webhook caller may see from what gets logged.
type WebhookError struct {
	StatusCode  int
	PublicError string
	Err         error
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s: %v", e.PublicError, e.Err)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// StartPayment opens a gateway payment for a pending order owned by actor.
func (s *OrderService) StartPayment(ctx context.Context, orderID string, actor models.Actor) (*models.PaymentIntent, error) {
	if s.Payments == nil {
		return nil, fmt.Errorf("payment gateway not configured: %w", models.ErrStoreUnavailable)
	}

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, &models.StateError{OrderID: order.ID, Status: order.Status}
	}
	if order.RemainingTime(s.now()) <= 0 {
		return nil, fmt.Errorf("payment window closed: %w", &models.StateError{OrderID: order.ID, Status: models.OrderExpired})
	}

	intent, err := s.Payments.CreateIntent(ctx, order)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to create payment intent for order %s: %v", order.ID, err))
		return nil, err
	}
	s.Logger.Info("PAYMENT", fmt.Sprintf("Payment intent %s for order %s (%s %s)", intent.ID, order.ID, intent.Amount.StringFixed(2), intent.Currency))
	return intent, nil
}

// HandleWebhook verifies a gateway callback and applies its verdict.
func (s *OrderService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.Payments == nil {
		return &WebhookError{StatusCode: http.StatusServiceUnavailable, PublicError: "Payments not configured", Err: models.ErrStoreUnavailable}
	}

	orderID, result, ok, err := s.Payments.ParseWebhook(payload, signature)
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK_REJECTED", err.Error())
		return &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "Invalid webhook", Err: err}
	}
	if !ok {
		return nil
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Payment %s for order %s (txn=%s)", result.Outcome, orderID, result.Metadata.TransactionID))
	if _, err := s.HandlePaymentOutcome(ctx, orderID, result); err != nil {
		// A verdict for an order that already left pending is acknowledged so
		// the provider stops retrying.
		if isSettled(err) {
			s.Logger.LogReconcile(orderID, fmt.Sprintf("webhook payment not applied: %v", err))
			return nil
		}
		return &WebhookError{StatusCode: http.StatusInternalServerError, PublicError: "Failed to process payment", Err: err}
	}
	return nil
}

func isSettled(err error) bool {
	return errors.Is(err, models.ErrOrderNotPending) || errors.Is(err, models.ErrNotFound)
}
