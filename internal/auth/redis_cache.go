package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

// CachedProfiles fronts a ProfileResolver with Redis so every authenticated
// request does not hit the profiles table.
type CachedProfiles struct {
	Next   ProfileResolver
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func profileKey(subject string) string {
	return "profile:" + subject
}

func (c *CachedProfiles) Resolve(ctx context.Context, claims *Claims) (*models.Profile, error) {
	raw, err := c.Client.Get(ctx, profileKey(claims.Subject)).Bytes()
	if err == nil {
		var profile models.Profile
		if json.Unmarshal(raw, &profile) == nil {
			return &profile, nil
		}
	} else if err != redis.Nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Profile cache read failed: %v", err))
	}

	profile, err := c.Next.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(profile); err == nil {
		if err := c.Client.Set(ctx, profileKey(claims.Subject), raw, c.TTL).Err(); err != nil {
			c.Logger.Warn("AUTH", fmt.Sprintf("Profile cache write failed: %v", err))
		}
	}
	return profile, nil
}

// Forget drops a cached profile, e.g. after a role change.
func (c *CachedProfiles) Forget(ctx context.Context, subject string) error {
	return c.Client.Del(ctx, profileKey(subject)).Err()
}
