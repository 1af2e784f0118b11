package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// PortalCacheTTL bounds staleness of the customer portal read model between
// invalidations.
const PortalCacheTTL = 5 * time.Minute

// PortalCache is a Redis read-through cache for the per-customer portal
// query. Every lifecycle or schedule mutation for a customer invalidates
// that customer's keys.
type PortalCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPortalCache connects to Redis and returns a PortalCache
func NewPortalCache(redisURL string) (*PortalCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &PortalCache{client: client, ttl: PortalCacheTTL}, nil
}

// NewPortalCacheWithClient wraps an existing Redis client. The server uses
// this with its configured client; tests use it with miniredis.
func NewPortalCacheWithClient(client *redis.Client) *PortalCache {
	return &PortalCache{client: client, ttl: PortalCacheTTL}
}

// Client exposes the underlying Redis client for health checks
func (c *PortalCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *PortalCache) Close() error {
	return c.client.Close()
}

func portalKey(businessID, customerID int64, upcoming int) string {
	return fmt.Sprintf("portal:%d:%d:%d", businessID, customerID, upcoming)
}

func portalKeyPattern(businessID, customerID int64) string {
	return fmt.Sprintf("portal:%d:%d:*", businessID, customerID)
}

// GetCustomerSubscriptions returns the cached portal model and whether it
// was present.
func (c *PortalCache) GetCustomerSubscriptions(ctx context.Context, businessID, customerID int64, upcoming int) ([]*subscriptions.CustomerSubscription, bool, error) {
	data, err := c.client.Get(ctx, portalKey(businessID, customerID, upcoming)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var subs []*subscriptions.CustomerSubscription
	if err := json.Unmarshal([]byte(data), &subs); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		c.client.Del(ctx, portalKey(businessID, customerID, upcoming))
		return nil, false, nil
	}
	return subs, true, nil
}

// SetCustomerSubscriptions caches the portal model
func (c *PortalCache) SetCustomerSubscriptions(ctx context.Context, businessID, customerID int64, upcoming int, subs []*subscriptions.CustomerSubscription) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal portal model: %w", err)
	}
	if err := c.client.Set(ctx, portalKey(businessID, customerID, upcoming), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateCustomer drops every cached portal view for the customer
func (c *PortalCache) InvalidateCustomer(ctx context.Context, businessID, customerID int64) error {
	iter := c.client.Scan(ctx, 0, portalKeyPattern(businessID, customerID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
