package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	catalogdb "ms-storefront/internal/catalog/db"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	promodb "ms-storefront/internal/promo/db"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun    *bun.DB
	Logger *logger.Logger
}

// Transition describes a pending order moving to a terminal, non-paid status.
type Transition struct {
	OrderID     string
	To          models.OrderStatus
	CancelledBy string
	Now         time.Time
}

// ---------------- ORDERS ----------------

// InsertOrder → order and its tickets in one transaction
func (d *DB) InsertOrder(ctx context.Context, order *models.Order, tickets []*models.Ticket) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return models.Unavailable("insert order", err)
		}
		if len(tickets) > 0 {
			if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
				return models.Unavailable("insert tickets", err)
			}
		}
		return nil
	})
}

// GetOrder → one order with tickets by buyer index
func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return d.getOrder(ctx, d.Bun, "o.id = ?", id)
}

func (d *DB) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return d.getOrder(ctx, d.Bun, "o.order_number = ?", number)
}

func (d *DB) getOrder(ctx context.Context, db bun.IDB, where string, arg string) (*models.Order, error) {
	order := new(models.Order)
	err := db.NewSelect().
		Model(order).
		Relation("Tickets", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("t.buyer_index ASC")
		}).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", arg, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get order", err)
	}
	return order, nil
}

// ListOrdersByUser → newest first, with tickets
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Tickets", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("t.buyer_index ASC")
		}).
		Where("o.user_id = ?", userID).
		Order("o.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, models.Unavailable("list user orders", err)
	}
	return orders, nil
}

// ListOrders → admin listing with total count for paging
func (d *DB) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error) {
	var orders []*models.Order
	q := d.Bun.NewSelect().Model(&orders).Order("o.created_at DESC")
	if f.Status != "" {
		q = q.Where("o.status = ?", f.Status)
	}
	if f.ProductID != "" {
		q = q.Where("o.product_id = ?", f.ProductID)
	}
	if f.UserID != "" {
		q = q.Where("o.user_id = ?", f.UserID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, models.Unavailable("list orders", err)
	}
	return orders, total, nil
}

// ListExpiredPending returns ids of pending orders whose payment window closed.
func (d *DB) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("o.id").
		Where("o.status = ?", models.OrderPending).
		Where("o.payment_expiry <= ?", now).
		Order("o.payment_expiry ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, models.Unavailable("list expired orders", err)
	}
	return ids, nil
}

// ---------------- TRANSITIONS ----------------

// MarkPaid moves a pending, unexpired order to paid. When the order is not in
// that state nothing changes and the current order is returned with
// ErrOrderNotPending so the caller can classify it.
func (d *DB) MarkPaid(ctx context.Context, id string, meta models.PaymentMetadata, now time.Time) (*models.Order, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderPaid).
		Set("payment_method = ?", meta.Method).
		Set("payment_transaction_id = ?", meta.TransactionID).
		Set("paid_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.OrderPending).
		Where("payment_expiry > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, models.Unavailable("mark order paid", err)
	}

	order, getErr := d.GetOrder(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order, &models.StateError{OrderID: id, Status: order.Status}
	}
	return order, nil
}

// Finalize performs a cancel or expire: the conditional status change, the
// stock release and the promo release commit together or not at all. Exactly
// one concurrent caller wins; the others get ErrOrderNotPending along with the
// order as it stands.
func (d *DB) Finalize(ctx context.Context, t Transition) (*models.Order, error) {
	if t.To != models.OrderCancelled && t.To != models.OrderExpired {
		return nil, fmt.Errorf("finalize to %s: %w", t.To, models.ErrInvalidStateTransition)
	}

	var result *models.Order
	var lost error

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", t.To).
			Set("updated_at = ?", t.Now).
			Where("id = ?", t.OrderID).
			Where("status = ?", models.OrderPending)
		if t.CancelledBy != "" {
			q = q.Set("cancelled_by = ?", t.CancelledBy)
		}
		if t.To == models.OrderExpired {
			q = q.Where("payment_expiry <= ?", t.Now)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return models.Unavailable("finalize order", err)
		}

		order, err := d.getOrder(ctx, tx, "o.id = ?", t.OrderID)
		if err != nil {
			return err
		}
		result = order

		if n, _ := res.RowsAffected(); n == 0 {
			if order.Status == models.OrderPending && t.To == models.OrderExpired {
				lost = fmt.Errorf("order %s expires at %s: %w", order.ID, order.PaymentExpiry.Format(time.RFC3339), models.ErrOrderNotExpired)
			} else {
				lost = &models.StateError{OrderID: order.ID, Status: order.Status}
			}
			return nil
		}

		err = catalogdb.ReleaseStock(ctx, tx, order.ProductID, order.TicketType, order.Quantity)
		if errors.Is(err, models.ErrNotFound) {
			// The tier is gone; the seats have nowhere to return to.
			d.reconcile(order.ID, fmt.Sprintf("%s: %d seats of %s/%s not released: %v",
				t.To, order.Quantity, order.ProductID, order.TicketType, err))
		} else if err != nil {
			return err
		}
		if order.PromoCodeID != nil {
			if err := promodb.Release(ctx, tx, *order.PromoCodeID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, lost
}

// ---------------- INVENTORY ----------------

func (d *DB) ReserveStock(ctx context.Context, productID, ticketType string, qty int) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return catalogdb.ReserveStock(ctx, tx, productID, ticketType, qty)
	})
}

func (d *DB) ReleaseStock(ctx context.Context, productID, ticketType string, qty int) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return catalogdb.ReleaseStock(ctx, tx, productID, ticketType, qty)
	})
}

func (d *DB) ConsumePromo(ctx context.Context, promoID string) error {
	return promodb.Consume(ctx, d.Bun, promoID)
}

func (d *DB) ReleasePromo(ctx context.Context, promoID string) error {
	return promodb.Release(ctx, d.Bun, promoID)
}

func (d *DB) reconcile(orderID, msg string) {
	if d.Logger != nil {
		d.Logger.LogReconcile(orderID, msg)
	}
}
