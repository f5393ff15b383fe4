package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Connect opens PostgreSQL with retries and wraps it in bun.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	retries := cfg.ConnectRetry
	if retries < 1 {
		retries = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, retries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres after %d attempts: %w", retries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

var schemaModels = []interface{}{
	(*models.Product)(nil),
	(*models.TicketType)(nil),
	(*models.PromoCode)(nil),
	(*models.Order)(nil),
	(*models.Ticket)(nil),
	(*models.Profile)(nil),
}

// CreateSchema builds the tables straight from the bun models. Production
// schemas come from migrations/; this serves tests and throwaway databases.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		unique  bool
		columns []string
	}{
		{(*models.TicketType)(nil), "ticket_types_product_name_uq", true, []string{"product_id", "name"}},
		{(*models.Order)(nil), "orders_user_idx", false, []string{"user_id"}},
		{(*models.Order)(nil), "orders_status_expiry_idx", false, []string{"status", "payment_expiry"}},
		{(*models.Ticket)(nil), "tickets_order_idx", false, []string{"order_id"}},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
