package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// zeroDecimalCurrencies are charged in whole units by Stripe.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// StripeGateway implements PaymentGateway with Stripe PaymentIntents.
type StripeGateway struct {
	intents       *paymentintent.Client
	webhookSecret string
	currency      string
}

func NewStripeGateway(secretKey, webhookSecret, currency string) *StripeGateway {
	return &StripeGateway{
		intents:       &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
	}
}

func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[currency] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

// CreateIntent opens a PaymentIntent for the order total. The idempotency key
// makes repeated calls for one order return the same intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, order *models.Order) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(order.TotalAmount, g.currency)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("Order %s", order.OrderNumber)),
	}
	params.Context = ctx
	params.AddMetadata("order_id", order.ID)
	params.AddMetadata("order_number", order.OrderNumber)
	params.SetIdempotencyKey("order-" + order.ID)

	intent, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe payment intent: %w", err)
	}
	return &models.PaymentIntent{
		ID:           intent.ID,
		OrderID:      order.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       fromMinorUnits(intent.Amount, g.currency),
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps PaymentIntent
// events onto payment outcomes.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (string, models.PaymentResult, bool, error) {
	if g.webhookSecret == "" {
		return "", models.PaymentResult{}, false, fmt.Errorf("stripe webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", models.PaymentResult{}, false, fmt.Errorf("verify stripe signature: %w", err)
	}

	var outcome models.PaymentOutcome
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = models.PaymentSucceeded
	case "payment_intent.processing":
		outcome = models.PaymentPending
	case "payment_intent.payment_failed":
		outcome = models.PaymentFailed
	case "payment_intent.canceled":
		outcome = models.PaymentAbandoned
	default:
		return "", models.PaymentResult{}, false, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", models.PaymentResult{}, false, fmt.Errorf("decode payment intent: %w", err)
	}
	orderID, exists := intent.Metadata["order_id"]
	if !exists || orderID == "" {
		return "", models.PaymentResult{}, false, fmt.Errorf("payment intent %s has no order_id in metadata", intent.ID)
	}

	method := "stripe"
	if len(intent.PaymentMethodTypes) > 0 {
		method = "stripe_" + intent.PaymentMethodTypes[0]
	}
	return orderID, models.PaymentResult{
		Outcome:  outcome,
		Metadata: models.PaymentMetadata{Method: method, TransactionID: intent.ID},
	}, true, nil
}
