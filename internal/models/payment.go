package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMetadata is what gets persisted on a confirmed order.
type PaymentMetadata struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "success"
	PaymentPending   PaymentOutcome = "pending"
	PaymentFailed    PaymentOutcome = "failure"
	PaymentAbandoned PaymentOutcome = "abandoned"
)

// PaymentResult is the gateway's verdict on one payment attempt.
type PaymentResult struct {
	Outcome  PaymentOutcome  `json:"outcome"`
	Metadata PaymentMetadata `json:"metadata"`
}

// PaymentResultMessage arrives on the payment results topic.
type PaymentResultMessage struct {
	OrderID       string         `json:"order_id"`
	Outcome       PaymentOutcome `json:"outcome"`
	Method        string         `json:"method"`
	TransactionID string         `json:"transaction_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func (m PaymentResultMessage) Result() PaymentResult {
	return PaymentResult{
		Outcome:  m.Outcome,
		Metadata: PaymentMetadata{Method: m.Method, TransactionID: m.TransactionID},
	}
}

// PaymentIntent is a gateway-side payment session for one order.
type PaymentIntent struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
}
