package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          string          `bun:"id,pk" json:"id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Description string          `bun:"description" json:"description"`
	ImageURL    string          `bun:"image_url" json:"image_url"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	Stock       int             `bun:"stock,notnull" json:"stock"`
	EventDate   time.Time       `bun:"event_date,notnull" json:"event_date"`
	Location    string          `bun:"location" json:"location"`
	IsActive    bool            `bun:"is_active,notnull" json:"is_active"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull" json:"updated_at"`

	TicketTypes []*TicketType `bun:"rel:has-many,join:id=product_id" json:"ticket_types"`
}

// TicketType is a priced tier of a product with its own stock counter.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID          string          `bun:"id,pk" json:"id"`
	ProductID   string          `bun:"product_id,notnull" json:"product_id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	Stock       int             `bun:"stock,notnull" json:"stock"`
	Description string          `bun:"description" json:"description"`
	Position    int             `bun:"position,notnull" json:"position"`
}

// FindTicketType matches by name, case-insensitively.
func (p *Product) FindTicketType(name string) *TicketType {
	for _, tt := range p.TicketTypes {
		if strings.EqualFold(tt.Name, strings.TrimSpace(name)) {
			return tt
		}
	}
	return nil
}

// Aggregate recomputes Price (cheapest tier) and Stock (sum of tiers) in memory.
func (p *Product) Aggregate() {
	p.Stock = 0
	p.Price = decimal.Zero
	for i, tt := range p.TicketTypes {
		p.Stock += tt.Stock
		if i == 0 || tt.Price.LessThan(p.Price) {
			p.Price = tt.Price
		}
	}
}

type TicketTypeInput struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
}

type ProductInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url"`
	EventDate   time.Time         `json:"event_date"`
	Location    string            `json:"location"`
	IsActive    *bool             `json:"is_active,omitempty"`
	TicketTypes []TicketTypeInput `json:"ticket_types"`
}
