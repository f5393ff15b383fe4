package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetByCode looks the code up case-insensitively.
func (d *DB) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	p := new(models.PromoCode)
	err := d.Bun.NewSelect().
		Model(p).
		Where("UPPER(pc.code) = ?", models.NormalizeCode(code)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("promo %q: %w", code, models.ErrPromoNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get promo", err)
	}
	return p, nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.PromoCode, error) {
	p := new(models.PromoCode)
	err := d.Bun.NewSelect().Model(p).Where("pc.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("promo %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get promo", err)
	}
	return p, nil
}

func (d *DB) List(ctx context.Context) ([]*models.PromoCode, error) {
	var promos []*models.PromoCode
	if err := d.Bun.NewSelect().Model(&promos).Order("pc.created_at DESC").Scan(ctx); err != nil {
		return nil, models.Unavailable("list promos", err)
	}
	return promos, nil
}

func (d *DB) Create(ctx context.Context, p *models.PromoCode) error {
	n, err := d.Bun.NewSelect().Model((*models.PromoCode)(nil)).Where("UPPER(code) = ?", p.Code).Count(ctx)
	if err != nil {
		return models.Unavailable("check promo code", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: promo code %s already exists", models.ErrInvalidInput, p.Code)
	}
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: promo code %s already exists", models.ErrInvalidInput, p.Code)
		}
		return models.Unavailable("insert promo", err)
	}
	return nil
}

// isUniqueViolation matches a lost race on the code's unique constraint, as
// reported by PostgreSQL or SQLite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Update rewrites the editable fields. Stock may not drop below used_count.
func (d *DB) Update(ctx context.Context, p *models.PromoCode) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model(p).
		Column("discount_type", "discount_value", "stock", "valid_from", "valid_until", "is_active", "updated_at").
		WherePK().
		Where("used_count <= ?", p.Stock).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("update promo", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := d.GetByID(ctx, p.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: stock below redemptions already made", models.ErrInvalidInput)
	}
	return nil
}

// Delete removes a promo that was never redeemed and is not on any order.
func (d *DB) Delete(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p := new(models.PromoCode)
		err := tx.NewSelect().Model(p).Where("pc.id = ?", id).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("promo %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return models.Unavailable("get promo", err)
		}

		n, err := tx.NewSelect().Model((*models.Order)(nil)).Where("promo_code_id = ?", id).Count(ctx)
		if err != nil {
			return models.Unavailable("count promo orders", err)
		}
		if n > 0 || p.UsedCount > 0 {
			return fmt.Errorf("promo %s has been redeemed: %w", p.Code, models.ErrInUse)
		}

		if _, err := tx.NewDelete().Model((*models.PromoCode)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return models.Unavailable("delete promo", err)
		}
		return nil
	})
}

// Consume is the conditional increment: at most stock redemptions ever succeed.
func Consume(ctx context.Context, db bun.IDB, promoID string) error {
	res, err := db.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("used_count = used_count + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", promoID).
		Where("used_count < stock").
		Exec(ctx)
	if err != nil {
		return models.Unavailable("consume promo", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Unavailable("consume promo", err)
	} else if n == 0 {
		return fmt.Errorf("promo %s: %w", promoID, models.ErrPromoExhausted)
	}
	return nil
}

// Release returns one redemption; used_count never goes below zero.
func Release(ctx context.Context, db bun.IDB, promoID string) error {
	_, err := db.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("used_count = used_count - 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", promoID).
		Where("used_count > 0").
		Exec(ctx)
	if err != nil {
		return models.Unavailable("release promo", err)
	}
	return nil
}
