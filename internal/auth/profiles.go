package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

// ProfileDB keeps a local profile row per identity subject.
type ProfileDB struct {
	Bun *bun.DB
}

// Resolve returns the caller's profile, creating a customer profile on first sight.
func (d *ProfileDB) Resolve(ctx context.Context, claims *Claims) (*models.Profile, error) {
	now := time.Now().UTC()
	profile := &models.Profile{
		ID:        claims.Subject,
		Email:     claims.Email,
		FullName:  claims.Name,
		Role:      models.RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := d.Bun.NewInsert().Model(profile).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return nil, models.Unavailable("insert profile", err)
	}
	return d.Get(ctx, claims.Subject)
}

func (d *ProfileDB) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile := new(models.Profile)
	err := d.Bun.NewSelect().Model(profile).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.Unavailable("get profile", err)
	}
	return profile, nil
}

func (d *ProfileDB) SetRole(ctx context.Context, id string, role models.Role) error {
	if role != models.RoleAdmin && role != models.RoleCustomer {
		return fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, role)
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.Profile)(nil)).
		Set("role = ?", role).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return models.Unavailable("set role", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", id, models.ErrNotFound)
	}
	return nil
}
