package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	dispatchClaimPrefix = keyPrefix + "dispatched:"
	DefaultClaimTTL     = 24 * time.Hour
)

// DispatchClaims records which reminders already had a delivery attempt.
// The first Claim for an id wins; later claims within the TTL report false.
type DispatchClaims struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDispatchClaims(client *redis.Client, ttl time.Duration) *DispatchClaims {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &DispatchClaims{client: client, ttl: ttl}
}

func (c *DispatchClaims) Claim(ctx context.Context, reminderID int64) (bool, error) {
	key := dispatchClaimPrefix + strconv.FormatInt(reminderID, 10)
	ok, err := c.client.SetNX(ctx, key, time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim reminder %d", reminderID)
	}
	return ok, nil
}
