package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/logger"

	"github.com/go-redis/redis/v8"
)

const expiryKeyPrefix = "order_expiry:"

// expiryGrace keeps the key alive slightly past the deadline so the expired
// event never arrives before the database considers the order overdue.
const expiryGrace = time.Second

// Redis keeps one TTL key per pending order. When a key expires Redis emits a
// keyevent notification that triggers the order's expiry.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	now    func() time.Time
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{
		Client: client,
		Logger: log,
		now:    time.Now,
	}
}

func expiryKey(orderID string) string {
	return expiryKeyPrefix + orderID
}

// Schedule arms the reservation timer for orderID.
func (r *Redis) Schedule(ctx context.Context, orderID string, expiry time.Time) error {
	ttl := expiry.Sub(r.now()) + expiryGrace
	if ttl < expiryGrace {
		ttl = expiryGrace
	}
	return r.Client.Set(ctx, expiryKey(orderID), orderID, ttl).Err()
}

// Clear disarms the timer once the order left pending.
func (r *Redis) Clear(ctx context.Context, orderID string) error {
	return r.Client.Del(ctx, expiryKey(orderID)).Err()
}

// Remaining reports the timer's TTL; ok is false when no timer is armed.
func (r *Redis) Remaining(ctx context.Context, orderID string) (ttl time.Duration, ok bool, err error) {
	ttl, err = r.Client.PTTL(ctx, expiryKey(orderID)).Result()
	if err != nil {
		return 0, false, err
	}
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// EnableKeyspaceNotifications turns on expired-key events. Managed Redis
// offerings often refuse CONFIG SET; the sweeper still covers expiry then.
func (r *Redis) EnableKeyspaceNotifications(ctx context.Context) {
	if _, err := r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		return
	}
	r.Logger.Info("REDIS", "Keyspace notifications enabled for expired events")
}

func (r *Redis) expiredChannel() string {
	return fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
}

// SubscribeExpirations calls onExpired for every reservation timer that fires,
// until ctx is cancelled.
func (r *Redis) SubscribeExpirations(ctx context.Context, onExpired func(ctx context.Context, orderID string)) error {
	pubsub := r.Client.PSubscribe(ctx, r.expiredChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to expired events: %w", err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", r.expiredChannel()))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, expiryKeyPrefix) {
					continue
				}
				orderID := strings.TrimPrefix(msg.Payload, expiryKeyPrefix)
				r.Logger.Debug("REDIS", fmt.Sprintf("Reservation timer fired for order %s", orderID))
				onExpired(ctx, orderID)
			}
		}
	}()
	return nil
}
