package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const certKeyPrefix = "vodscribe:paypal:cert:"

// CertCache keeps PayPal signing certificates in Redis keyed by cert URL.
type CertCache struct {
	client redis.UniversalClient
}

func NewCertCache(client redis.UniversalClient) *CertCache {
	return &CertCache{client: client}
}

func (c *CertCache) GetCert(ctx context.Context, certURL string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, certKeyPrefix+certURL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *CertCache) PutCert(ctx context.Context, certURL string, pemBytes []byte, ttl time.Duration) error {
	return c.client.Set(ctx, certKeyPrefix+certURL, pemBytes, ttl).Err()
}
