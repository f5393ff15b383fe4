package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Service computes admin dashboard aggregates straight from the order,
// catalog and promo tables.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Overview is the storefront-wide summary.
type Overview struct {
	TotalRevenue   decimal.Decimal            `json:"total_revenue"`
	TotalDiscounts decimal.Decimal            `json:"total_discounts"`
	TicketsSold    int                        `json:"tickets_sold"`
	PendingSeats   int                        `json:"pending_seats"`
	OrdersByStatus map[models.OrderStatus]int `json:"orders_by_status"`
}

// TicketTypeSales covers one ticket type of a product.
type TicketTypeSales struct {
	TicketType     string          `json:"ticket_type"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TicketsSold    int             `json:"tickets_sold"`
	Revenue        decimal.Decimal `json:"revenue"`
	PendingSeats   int             `json:"pending_seats"`
	RemainingStock int             `json:"remaining_stock"`
}

type ProductSales struct {
	ProductID      string            `json:"product_id"`
	ProductName    string            `json:"product_name"`
	TicketsSold    int               `json:"tickets_sold"`
	Revenue        decimal.Decimal   `json:"revenue"`
	RemainingStock int               `json:"remaining_stock"`
	SalesByType    []TicketTypeSales `json:"sales_by_type"`
}

// PromoUsage tracks redemptions of one promo code.
type PromoUsage struct {
	PromoID         string          `bun:"promo_id" json:"promo_id"`
	Code            string          `bun:"code" json:"code"`
	UsedCount       int             `bun:"used_count" json:"used_count"`
	Stock           int             `bun:"stock" json:"stock"`
	PaidOrders      int             `bun:"paid_orders" json:"paid_orders"`
	DiscountGranted decimal.Decimal `bun:"discount_granted" json:"discount_granted"`
}

// DailySales contains paid-order metrics for a single UTC day.
type DailySales struct {
	Date        string          `bun:"sales_date" json:"date"`
	Orders      int             `bun:"orders" json:"orders"`
	TicketsSold int             `bun:"tickets_sold" json:"tickets_sold"`
	Revenue     decimal.Decimal `bun:"revenue" json:"revenue"`
}

type statusRow struct {
	Status   models.OrderStatus `bun:"status"`
	Orders   int                `bun:"orders"`
	Seats    int                `bun:"seats"`
	Revenue  decimal.Decimal    `bun:"revenue"`
	Discount decimal.Decimal    `bun:"discount"`
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var rows []statusRow
	err := s.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.status AS status").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(o.quantity), 0) AS seats").
		ColumnExpr("COALESCE(SUM(o.total_amount), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(o.discount_amount), 0) AS discount").
		GroupExpr("o.status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, models.Unavailable("dashboard overview", err)
	}

	out := &Overview{
		TotalRevenue:   decimal.Zero,
		TotalDiscounts: decimal.Zero,
		OrdersByStatus: map[models.OrderStatus]int{
			models.OrderPending:   0,
			models.OrderPaid:      0,
			models.OrderCancelled: 0,
			models.OrderExpired:   0,
		},
	}
	for _, r := range rows {
		out.OrdersByStatus[r.Status] = r.Orders
		switch r.Status {
		case models.OrderPaid:
			out.TotalRevenue = r.Revenue
			out.TotalDiscounts = r.Discount
			out.TicketsSold = r.Seats
		case models.OrderPending:
			out.PendingSeats = r.Seats
		}
	}
	return out, nil
}

type typeRow struct {
	TicketType string             `bun:"ticket_type"`
	Status     models.OrderStatus `bun:"status"`
	Seats      int                `bun:"seats"`
	Revenue    decimal.Decimal    `bun:"revenue"`
}

func (s *Service) ProductSales(ctx context.Context, productID string) (*ProductSales, error) {
	product := new(models.Product)
	err := s.db.NewSelect().
		Model(product).
		Relation("TicketTypes", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("tt.position ASC", "tt.name ASC")
		}).
		Where("p.id = ?", productID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("product sales", err)
	}

	var rows []typeRow
	err = s.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.ticket_type AS ticket_type").
		ColumnExpr("o.status AS status").
		ColumnExpr("COALESCE(SUM(o.quantity), 0) AS seats").
		ColumnExpr("COALESCE(SUM(o.total_amount), 0) AS revenue").
		Where("o.product_id = ?", productID).
		Where("o.status IN (?)", bun.In([]models.OrderStatus{models.OrderPaid, models.OrderPending})).
		GroupExpr("o.ticket_type, o.status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, models.Unavailable("product sales", err)
	}

	out := &ProductSales{ProductID: product.ID, ProductName: product.Name, Revenue: decimal.Zero}
	index := make(map[string]int, len(product.TicketTypes))
	for _, tt := range product.TicketTypes {
		index[tt.Name] = len(out.SalesByType)
		out.SalesByType = append(out.SalesByType, TicketTypeSales{
			TicketType:     tt.Name,
			UnitPrice:      tt.Price,
			Revenue:        decimal.Zero,
			RemainingStock: tt.Stock,
		})
		out.RemainingStock += tt.Stock
	}

	for _, r := range rows {
		i, ok := index[r.TicketType]
		if !ok {
			// ticket type renamed or removed after the sale
			i = len(out.SalesByType)
			index[r.TicketType] = i
			out.SalesByType = append(out.SalesByType, TicketTypeSales{TicketType: r.TicketType, Revenue: decimal.Zero})
		}
		entry := &out.SalesByType[i]
		switch r.Status {
		case models.OrderPaid:
			entry.TicketsSold += r.Seats
			entry.Revenue = entry.Revenue.Add(r.Revenue)
			out.TicketsSold += r.Seats
			out.Revenue = out.Revenue.Add(r.Revenue)
		case models.OrderPending:
			entry.PendingSeats += r.Seats
		}
	}
	return out, nil
}

func (s *Service) PromoUsage(ctx context.Context) ([]PromoUsage, error) {
	var out []PromoUsage
	err := s.db.NewRaw(`
		SELECT
			pc.id AS promo_id,
			pc.code AS code,
			pc.used_count AS used_count,
			pc.stock AS stock,
			COUNT(o.id) AS paid_orders,
			COALESCE(SUM(o.discount_amount), 0) AS discount_granted
		FROM promo_codes pc
		LEFT JOIN orders o ON o.promo_code_id = pc.id AND o.status = ?
		GROUP BY pc.id, pc.code, pc.used_count, pc.stock
		ORDER BY pc.code ASC`, models.OrderPaid).
		Scan(ctx, &out)
	if err != nil {
		return nil, models.Unavailable("promo usage", err)
	}
	return out, nil
}

// DailySales buckets paid orders by the UTC day they were paid, for
// from <= paid_at < to.
func (s *Service) DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: range start must be before its end", models.ErrInvalidInput)
	}

	day := "strftime('%Y-%m-%d', o.paid_at)"
	if s.db.Dialect().Name() == dialect.PG {
		day = "to_char(o.paid_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}

	var out []DailySales
	err := s.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr(day+" AS sales_date").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(o.quantity), 0) AS tickets_sold").
		ColumnExpr("COALESCE(SUM(o.total_amount), 0) AS revenue").
		Where("o.status = ?", models.OrderPaid).
		Where("o.paid_at >= ?", from.UTC()).
		Where("o.paid_at < ?", to.UTC()).
		GroupExpr("sales_date").
		OrderExpr("sales_date ASC").
		Scan(ctx, &out)
	if err != nil {
		return nil, models.Unavailable("daily sales", err)
	}
	return out, nil
}
