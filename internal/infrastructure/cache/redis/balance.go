package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	goredis "github.com/redis/go-redis/v9"
)

// BalanceCache keeps each buyer's last known point balance for a short TTL.
type BalanceCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func CreateBalanceCache(ctx context.Context, conf config.RedisConfig) (*BalanceCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DB:          0,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return CreateBalanceCacheFromClient(client, conf.TTL), nil
}

func CreateBalanceCacheFromClient(client *goredis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(buyerID int64) string {
	return fmt.Sprintf("checkout:balance:%d", buyerID)
}

func (c *BalanceCache) GetBalance(ctx context.Context, buyerID int64) (int64, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(buyerID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}

	return balance, true, nil
}

func (c *BalanceCache) SetBalance(ctx context.Context, buyerID int64, balance int64) error {
	return c.client.Set(ctx, balanceKey(buyerID), balance, c.ttl).Err()
}

func (c *BalanceCache) InvalidateBalance(ctx context.Context, buyerID int64) error {
	return c.client.Del(ctx, balanceKey(buyerID)).Err()
}

func (c *BalanceCache) Close() error {
	return c.client.Close()
}

// NoopBalanceCache is used when no redis address is configured. Every read
// misses.
type NoopBalanceCache struct{}

func (NoopBalanceCache) GetBalance(ctx context.Context, buyerID int64) (int64, bool, error) {
	return 0, false, nil
}

func (NoopBalanceCache) SetBalance(ctx context.Context, buyerID int64, balance int64) error {
	return nil
}

func (NoopBalanceCache) InvalidateBalance(ctx context.Context, buyerID int64) error {
	return nil
}
