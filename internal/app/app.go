// Package app assembles the storefront services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/catalog"
	catalogdb "ms-storefront/internal/catalog/db"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order"
	orderdb "ms-storefront/internal/order/db"
	orderredis "ms-storefront/internal/order/redis"
	"ms-storefront/internal/promo"
	promodb "ms-storefront/internal/promo/db"
	"ms-storefront/internal/sse"
	"ms-storefront/internal/tickets"
	ticketdb "ms-storefront/internal/tickets/db"
	qr "ms-storefront/internal/tickets/qr_generator"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

const profileCacheTTL = 5 * time.Minute

type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *bun.DB
	Redis  *redis.Client

	Timers    *orderredis.Redis
	Producer  *kafka.Producer
	Events    *sse.OrderEventEmitter
	Catalog   *catalog.Service
	Promos    *promo.Service
	Orders    *order.OrderService
	Tickets   *tickets.TicketService
	Analytics *analytics.Service
	Profiles  auth.ProfileResolver
	ProfileDB *auth.ProfileDB
}

// Connect opens PostgreSQL and, when enabled, Redis, then assembles the services.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			bunDB.Close()
			redisClient.Close()
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	} else {
		log.Warn("REDIS", "Redis disabled; reservation expiry relies on the sweeper alone")
	}

	a, err := New(cfg, log, bunDB, redisClient)
	if err != nil {
		bunDB.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}
	return a, nil
}

// New wires the services over already-open stores. redisClient may be nil.
func New(cfg *config.Config, log *logger.Logger, bunDB *bun.DB, redisClient *redis.Client) (*App, error) {
	qrGen, err := qr.NewQRGenerator(cfg.Tickets.QRSecretKey, cfg.Tickets.QRSize)
	if err != nil {
		return nil, fmt.Errorf("ticket QR setup: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: log,
		DB:     bunDB,
		Redis:  redisClient,
		Events: sse.NewOrderEventEmitter(),
	}
	a.ProfileDB = &auth.ProfileDB{Bun: bunDB}
	a.Profiles = a.ProfileDB

	deps := order.Deps{
		DB:      &orderdb.DB{Bun: bunDB, Logger: log},
		Tickets: tickets.NewIssuer(),
		Logger:  log,
	}
	publishers := order.FanOut{a.Events}

	if redisClient != nil {
		a.Catalog = catalog.NewService(&catalogdb.DB{Bun: bunDB}, catalog.NewRedisCache(redisClient), cfg.Catalog.CacheTTL, log)
		a.Timers = orderredis.NewRedis(redisClient, log)
		deps.Timers = a.Timers
		a.Profiles = &auth.CachedProfiles{Next: a.ProfileDB, Client: redisClient, TTL: profileCacheTTL, Logger: log}
	} else {
		a.Catalog = catalog.NewService(&catalogdb.DB{Bun: bunDB}, nil, cfg.Catalog.CacheTTL, log)
	}

	if cfg.Kafka.Enabled {
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		publishers = append(publishers, a.Producer)
	}
	deps.Events = publishers

	if cfg.Payment.StripeSecretKey != "" {
		deps.Payments = order.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret, cfg.Payment.Currency)
		log.Info("PAYMENT", fmt.Sprintf("Stripe gateway enabled (currency %s)", cfg.Payment.Currency))
	} else {
		log.Warn("PAYMENT", "STRIPE_SECRET_KEY not set; only manual payment confirmation is available")
	}

	a.Promos = promo.NewService(&promodb.DB{Bun: bunDB}, log)
	deps.Catalog = a.Catalog
	deps.Promos = a.Promos

	a.Orders = order.NewOrderService(deps, cfg.Order.ReservationWindow)
	a.Tickets = tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, a.Orders, qrGen, log)
	a.Analytics = analytics.NewService(bunDB)
	return a, nil
}

// Migrate applies pending schema migrations when auto-migration is on.
func (a *App) Migrate() error {
	if !a.Config.Database.AutoMigrate {
		a.Logger.Info("MIGRATE", "Auto-migration disabled")
		return nil
	}
	runner := migrations.NewRunner(a.DB.DB, migrations.Options{
		MigrationsDir: a.Config.Database.MigrationsDir,
		AutoMigrate:   true,
	}, a.Logger)
	defer runner.Close()
	return runner.Up()
}

// StartWorkers runs the expiry machinery and the payment results consumer
// until ctx is done: the Redis timer subscription, the sweeper backstop and,
// when Kafka is enabled, topic setup plus the consumer.
func (a *App) StartWorkers(ctx context.Context) {
	if a.Timers != nil {
		a.Timers.EnableKeyspaceNotifications(ctx)
		if err := a.Timers.SubscribeExpirations(ctx, a.Orders.OnReservationExpired); err != nil {
			a.Logger.Error("REDIS", fmt.Sprintf("Reservation timers unavailable: %v", err))
		}
	}

	sweeper := order.NewSweeper(a.Orders, a.Config.Order.SweepInterval, a.Config.Order.SweepBatchSize, a.Logger)
	go sweeper.Run(ctx)

	if a.Config.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, a.Config.Kafka.Brokers, a.Config.Kafka.Topics.All(), a.Logger); err != nil {
			a.Logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		consumer := kafka.NewConsumer(a.Config.Kafka.Brokers, a.Config.Kafka.Topics.PaymentResults, a.Config.Kafka.GroupID, a.Orders, a.Logger)
		go func() {
			consumer.Start(ctx)
			if err := consumer.Close(); err != nil {
				a.Logger.Warn("KAFKA", fmt.Sprintf("Consumer close: %v", err))
			}
		}()
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
