// Package cache stores priced carts in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	defaultKeyPrefix = "storefront"
	defaultTTL       = 30 * time.Second
	cartDetailOp     = "cart-detail"
)

// CartDetailCache implements services.CartDetailCache on a Redis client.
type CartDetailCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option customises the cache.
type Option func(*CartDetailCache)

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(c *CartDetailCache) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL overrides how long a priced cart stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *CartDetailCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewClient opens a Redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewCartDetailCache wraps client. client is usually a *redis.Client from NewClient.
func NewCartDetailCache(client redis.Cmdable, opts ...Option) (*CartDetailCache, error) {
	if client == nil {
		return nil, errors.New("cart cache: redis client is required")
	}
	c := &CartDetailCache{client: client, prefix: defaultKeyPrefix, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Get returns nil without error on a miss.
func (c *CartDetailCache) Get(ctx context.Context, userID string) (*services.CartDetail, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart cache: get %s: %w", userID, err)
	}
	return decodeDetail(raw)
}

func (c *CartDetailCache) Set(ctx context.Context, userID string, detail *services.CartDetail) error {
	if detail == nil {
		return nil
	}
	raw, err := encodeDetail(detail)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cart cache: set %s: %w", userID, err)
	}
	return nil
}

// Invalidate drops the cached carts of every listed user.
func (c *CartDetailCache) Invalidate(ctx context.Context, userIDs ...string) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if strings.TrimSpace(id) != "" {
			keys = append(keys, c.key(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cart cache: invalidate: %w", err)
	}
	return nil
}

func (c *CartDetailCache) key(userID string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, cartDetailOp, strings.TrimSpace(userID))
}

func encodeDetail(detail *services.CartDetail) ([]byte, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("cart cache: encode: %w", err)
	}
	return raw, nil
}

func decodeDetail(raw []byte) (*services.CartDetail, error) {
	var detail services.CartDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("cart cache: decode: %w", err)
	}
	return &detail, nil
}

var _ services.CartDetailCache = (*CartDetailCache)(nil)
