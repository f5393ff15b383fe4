package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	EventOrderCreated   OrderEventType = "order.created"
	EventOrderPaid      OrderEventType = "order.paid"
	EventOrderCancelled OrderEventType = "order.cancelled"
	EventOrderExpired   OrderEventType = "order.expired"
)

// OrderEvent is published to Kafka and to the admin SSE stream.
type OrderEvent struct {
	Type        OrderEventType  `json:"type"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	ProductID   string          `json:"product_id"`
	TicketType  string          `json:"ticket_type"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewOrderEvent(kind OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        kind,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		ProductID:   o.ProductID,
		TicketType:  o.TicketType,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		OccurredAt:  at,
	}
}
