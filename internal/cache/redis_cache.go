package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
)

// ErrMiss is returned when no receipt is cached for the sale number.
var ErrMiss = errors.New("cache: receipt not found")

const receiptKeyPrefix = "receipt:"

type RedisReceiptCache struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr string, password string, db int) (*RedisReceiptCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisReceiptCache{client: client}, nil
}

func (c *RedisReceiptCache) PutReceipt(ctx context.Context, receipt domain.Receipt, ttl time.Duration) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, receiptKeyPrefix+receipt.SaleNumber, payload, ttl).Err()
}

func (c *RedisReceiptCache) GetReceipt(ctx context.Context, saleNumber string) (*domain.Receipt, error) {
	payload, err := c.client.Get(ctx, receiptKeyPrefix+saleNumber).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	var receipt domain.Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *RedisReceiptCache) Close() error {
	return c.client.Close()
}
