package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID          string          `bun:"id,pk" json:"id"`
	OrderID     string          `bun:"order_id,notnull" json:"order_id"`
	ProductID   string          `bun:"product_id,notnull" json:"product_id"`
	BuyerIndex  int             `bun:"buyer_index,notnull" json:"buyer_index"`
	BuyerName   string          `bun:"buyer_name,notnull" json:"buyer_name"`
	TicketType  string          `bun:"ticket_type,notnull" json:"ticket_type"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	TicketCode  string          `bun:"ticket_code,notnull,unique" json:"ticket_code"`
	CheckedInAt *time.Time      `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"created_at"`

	Order *Order `bun:"rel:belongs-to,join:order_id=id" json:"-"`
}

// QRPayload is what gets encrypted into a ticket's QR image.
type QRPayload struct {
	TicketCode string `json:"ticket_code"`
	OrderID    string `json:"order_id"`
	BuyerIndex int    `json:"buyer_index"`
}

type CheckInRequest struct {
	TicketCode string `json:"ticket_code,omitempty"`
	QRData     string `json:"qr_data,omitempty"`
}
