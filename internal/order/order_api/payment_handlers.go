package order_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/order"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 64 << 10

// CreatePaymentIntent opens a gateway payment session for a pending order.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	actor, _ := auth.ActorFrom(r.Context())

	intent, err := h.OrderService.StartPayment(r.Context(), orderID, actor)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreatePaymentIntent: order=%s: %v", orderID, err))
		utils.WriteError(w, "Failed to create payment intent", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: intent %s for order %s", intent.ID, orderID))
	_ = utils.WriteSuccess(w, http.StatusOK, "Payment intent created", intent)
}

// StripeWebhook handles webhook events from Stripe.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("StripeWebhook: failed to read body: %v", err))
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	err = h.OrderService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *order.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("API", fmt.Sprintf("StripeWebhook: status=%d: %v", webhookErr.StatusCode, webhookErr.Err))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: %v", err))
		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
