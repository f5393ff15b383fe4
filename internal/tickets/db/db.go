package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetTicketByCode → ticket with its order
func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := d.Bun.NewSelect().
		Model(ticket).
		Relation("Order").
		Where("t.ticket_code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get ticket", err)
	}
	return ticket, nil
}

// GetTicketsByOrder → tickets by buyer index
func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("t.order_id = ?", orderID).
		Order("t.buyer_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.Unavailable("list tickets", err)
	}
	return tickets, nil
}

// CheckIn stamps checked_in_at once, and only for tickets of paid orders.
// It reports false when another scan got there first or the order is not paid.
func (d *DB) CheckIn(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	paid := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("o.id").
		Where("o.status = ?", models.OrderPaid)

	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("checked_in_at = ?", at).
		Where("id = ?", ticketID).
		Where("checked_in_at IS NULL").
		Where("order_id IN (?)", paid).
		Exec(ctx)
	if err != nil {
		return false, models.Unavailable("check in ticket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, models.Unavailable("check in ticket", err)
	}
	return n == 1, nil
}
