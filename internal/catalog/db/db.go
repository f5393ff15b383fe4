package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- PRODUCTS ----------------

// CreateProduct inserts the product and its ticket types in one transaction.
func (d *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	p.Aggregate()
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(p).Exec(ctx); err != nil {
			return models.Unavailable("insert product", err)
		}
		if len(p.TicketTypes) > 0 {
			if _, err := tx.NewInsert().Model(&p.TicketTypes).Exec(ctx); err != nil {
				return models.Unavailable("insert ticket types", err)
			}
		}
		return nil
	})
}

// GetProduct → product with its ticket types in display order
func (d *DB) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p := new(models.Product)
	err := d.Bun.NewSelect().
		Model(p).
		Relation("TicketTypes", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("tt.position ASC")
		}).
		Where("p.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get product", err)
	}
	return p, nil
}

// ListProducts orders by event date, soonest first.
func (d *DB) ListProducts(ctx context.Context, activeOnly bool) ([]*models.Product, error) {
	var products []*models.Product
	q := d.Bun.NewSelect().
		Model(&products).
		Relation("TicketTypes", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("tt.position ASC")
		}).
		Order("p.event_date ASC", "p.name ASC")
	if activeOnly {
		q = q.Where("p.is_active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, models.Unavailable("list products", err)
	}
	return products, nil
}

// UpdateProduct → metadata only; price and stock are derived
func (d *DB) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model(p).
		Column("name", "description", "image_url", "event_date", "location", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return models.Unavailable("update product", err)
	}
	return expectOne(res, fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound))
}

func (d *DB) SetActive(ctx context.Context, id string, active bool) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("set product active", err)
	}
	return expectOne(res, fmt.Errorf("product %s: %w", id, models.ErrNotFound))
}

// DeleteProduct refuses products that already have orders.
func (d *DB) DeleteProduct(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := tx.NewSelect().Model((*models.Order)(nil)).Where("product_id = ?", id).Count(ctx)
		if err != nil {
			return models.Unavailable("count product orders", err)
		}
		if n > 0 {
			return fmt.Errorf("product %s has %d orders: %w", id, n, models.ErrInUse)
		}
		if _, err := tx.NewDelete().Model((*models.TicketType)(nil)).Where("product_id = ?", id).Exec(ctx); err != nil {
			return models.Unavailable("delete ticket types", err)
		}
		res, err := tx.NewDelete().Model((*models.Product)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return models.Unavailable("delete product", err)
		}
		return expectOne(res, fmt.Errorf("product %s: %w", id, models.ErrNotFound))
	})
}

// ---------------- TICKET TYPES ----------------

// ReplaceTicketTypes makes the product's tiers match types: existing names are
// updated in place, new names inserted, missing names removed. A tier that
// still holds pending orders cannot be removed.
func (d *DB) ReplaceTicketTypes(ctx context.Context, productID string, types []*models.TicketType) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing []*models.TicketType
		if err := tx.NewSelect().Model(&existing).Where("product_id = ?", productID).Scan(ctx); err != nil {
			return models.Unavailable("load ticket types", err)
		}
		byName := make(map[string]*models.TicketType, len(existing))
		for _, tt := range existing {
			byName[tt.Name] = tt
		}

		keep := make(map[string]bool, len(types))
		for _, tt := range types {
			tt.ProductID = productID
			keep[tt.Name] = true
			if cur, ok := byName[tt.Name]; ok {
				tt.ID = cur.ID
				if _, err := tx.NewUpdate().Model(tt).
					Column("price", "stock", "description", "position").
					WherePK().
					Exec(ctx); err != nil {
					return models.Unavailable("update ticket type", err)
				}
				continue
			}
			if _, err := tx.NewInsert().Model(tt).Exec(ctx); err != nil {
				return models.Unavailable("insert ticket type", err)
			}
		}

		for name, tt := range byName {
			if keep[name] {
				continue
			}
			pending, err := tx.NewSelect().
				Model((*models.Order)(nil)).
				Where("product_id = ?", productID).
				Where("ticket_type = ?", name).
				Where("status = ?", models.OrderPending).
				Count(ctx)
			if err != nil {
				return models.Unavailable("count pending orders", err)
			}
			if pending > 0 {
				return fmt.Errorf("ticket type %s has %d pending orders: %w", name, pending, models.ErrInUse)
			}
			if _, err := tx.NewDelete().Model((*models.TicketType)(nil)).Where("id = ?", tt.ID).Exec(ctx); err != nil {
				return models.Unavailable("delete ticket type", err)
			}
		}

		return RecomputeAggregates(ctx, tx, productID)
	})
}

// AdjustStock adds delta (possibly negative) to one tier; stock never drops below zero.
func (d *DB) AdjustStock(ctx context.Context, productID, ticketType string, delta int) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if delta < 0 {
			return ReserveStock(ctx, tx, productID, ticketType, -delta)
		}
		return ReleaseStock(ctx, tx, productID, ticketType, delta)
	})
}

// ReserveStock is the conditional decrement: it succeeds only when qty units
// are still available, so concurrent callers can never oversell. db should be
// a transaction; the tier update and the product aggregates must commit together.
func ReserveStock(ctx context.Context, db bun.IDB, productID, ticketType string, qty int) error {
	res, err := db.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("stock = stock - ?", qty).
		Where("product_id = ?", productID).
		Where("name = ?", ticketType).
		Where("stock >= ?", qty).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("reserve stock", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Unavailable("reserve stock", err)
	} else if n == 0 {
		return fmt.Errorf("%s/%s x%d: %w", productID, ticketType, qty, models.ErrInsufficientStock)
	}
	return RecomputeAggregates(ctx, db, productID)
}

// ReleaseStock puts qty units back on a tier.
func ReleaseStock(ctx context.Context, db bun.IDB, productID, ticketType string, qty int) error {
	res, err := db.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("stock = stock + ?", qty).
		Where("product_id = ?", productID).
		Where("name = ?", ticketType).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("release stock", err)
	}
	if err := expectOne(res, fmt.Errorf("ticket type %s/%s: %w", productID, ticketType, models.ErrNotFound)); err != nil {
		return err
	}
	return RecomputeAggregates(ctx, db, productID)
}

// RecomputeAggregates derives product price and stock from its tiers.
func RecomputeAggregates(ctx context.Context, db bun.IDB, productID string) error {
	_, err := db.NewUpdate().
		Model((*models.Product)(nil)).
		Set("stock = (SELECT COALESCE(SUM(s.stock), 0) FROM ticket_types AS s WHERE s.product_id = ?)", productID).
		Set("price = (SELECT COALESCE(MIN(s.price), 0) FROM ticket_types AS s WHERE s.product_id = ?)", productID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", productID).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("recompute product aggregates", err)
	}
	return nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return models.Unavailable("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
