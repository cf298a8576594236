// Package cache holds the receipt cache used for reprints. Sales remain the
// source of truth in the store; the cache only makes recent receipts cheap to
// fetch again.
package cache

import (
	"context"
	"time"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
)

// ReceiptCache stores rendered receipts keyed by sale number.
type ReceiptCache interface {
	PutReceipt(ctx context.Context, receipt domain.Receipt, ttl time.Duration) error
	GetReceipt(ctx context.Context, saleNumber string) (*domain.Receipt, error)
	Close() error
}

// NoopReceiptCache is used when no Redis address is configured. Every read
// misses, every write succeeds.
type NoopReceiptCache struct{}

func NewNoop() *NoopReceiptCache {
	return &NoopReceiptCache{}
}

func (n *NoopReceiptCache) PutReceipt(ctx context.Context, receipt domain.Receipt, ttl time.Duration) error {
	return nil
}

func (n *NoopReceiptCache) GetReceipt(ctx context.Context, saleNumber string) (*domain.Receipt, error) {
	return nil, ErrMiss
}

func (n *NoopReceiptCache) Close() error {
	return nil
}
