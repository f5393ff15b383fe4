package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired
}

// CanTransition reports whether from -> to is allowed. Only pending moves.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == OrderPending && to.IsTerminal()
}

// Buyer is one seat holder. Buyer 0 is the primary buyer stored inline on the order.
type Buyer struct {
	Name    string `json:"name"`
	NIK     string `json:"nik"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               string          `bun:"id,pk" json:"id"`
	OrderNumber      string          `bun:"order_number,notnull,unique" json:"order_number"`
	UserID           string          `bun:"user_id,notnull" json:"user_id"`
	CustomerEmail    string          `bun:"customer_email" json:"customer_email"`
	ProductID        string          `bun:"product_id,notnull" json:"product_id"`
	TicketType       string          `bun:"ticket_type,notnull" json:"ticket_type"`
	UnitPrice        decimal.Decimal `bun:"unit_price,type:decimal(12,2),notnull" json:"unit_price"`
	Quantity         int             `bun:"quantity,notnull" json:"quantity"`
	Subtotal         decimal.Decimal `bun:"subtotal,type:decimal(12,2),notnull" json:"subtotal"`
	PromoCodeID      *string         `bun:"promo_code_id" json:"promo_code_id,omitempty"`
	DiscountAmount   decimal.Decimal `bun:"discount_amount,type:decimal(12,2),notnull" json:"discount_amount"`
	TotalAmount      decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull" json:"total_amount"`
	BuyerName        string          `bun:"buyer_name,notnull" json:"buyer_name"`
	BuyerNIK         string          `bun:"buyer_nik,notnull" json:"buyer_nik"`
	BuyerAddress     string          `bun:"buyer_address,notnull" json:"buyer_address"`
	BuyerEmail       string          `bun:"buyer_email" json:"buyer_email"`
	AdditionalBuyers []Buyer         `bun:"additional_buyers,type:jsonb" json:"additional_buyers"`
	Status           OrderStatus     `bun:"status,notnull" json:"status"`
	PaymentMethod    string          `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	PaymentTxID      string          `bun:"payment_transaction_id,nullzero" json:"payment_transaction_id,omitempty"`
	PaidAt           *time.Time      `bun:"paid_at" json:"paid_at,omitempty"`
	PaymentExpiry    time.Time       `bun:"payment_expiry,notnull" json:"payment_expiry"`
	CancelledBy      string          `bun:"cancelled_by,nullzero" json:"cancelled_by,omitempty"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull" json:"updated_at"`

	Tickets []*Ticket `bun:"rel:has-many,join:id=order_id" json:"tickets,omitempty"`
}

// Buyers returns the primary buyer followed by the additional ones.
func (o *Order) Buyers() []Buyer {
	out := make([]Buyer, 0, 1+len(o.AdditionalBuyers))
	out = append(out, Buyer{Name: o.BuyerName, NIK: o.BuyerNIK, Address: o.BuyerAddress, Email: o.BuyerEmail})
	return append(out, o.AdditionalBuyers...)
}

// SetBuyers stores buyers[0] inline and the rest as additional buyers.
func (o *Order) SetBuyers(buyers []Buyer) {
	if len(buyers) == 0 {
		return
	}
	o.BuyerName = buyers[0].Name
	o.BuyerNIK = buyers[0].NIK
	o.BuyerAddress = buyers[0].Address
	o.BuyerEmail = buyers[0].Email
	o.AdditionalBuyers = append([]Buyer{}, buyers[1:]...)
}

// RemainingTime is the time left to pay, zero once the window closed or the
// order left pending.
func (o *Order) RemainingTime(now time.Time) time.Duration {
	if o.Status != OrderPending {
		return 0
	}
	if d := o.PaymentExpiry.Sub(now); d > 0 {
		return d
	}
	return 0
}

type CreateOrderRequest struct {
	ProductID  string  `json:"product_id"`
	TicketType string  `json:"ticket_type"`
	Quantity   int     `json:"quantity"`
	PromoCode  string  `json:"promo_code,omitempty"`
	Buyers     []Buyer `json:"buyers"`
}

type OrderResponse struct {
	*Order
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// OrderFilter drives the admin order listing. Zero values mean "any".
type OrderFilter struct {
	Status    OrderStatus
	ProductID string
	UserID    string
	Limit     int
	Offset    int
}
