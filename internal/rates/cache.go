package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "paywatch:rates:"

// CachedSource keeps rates in Redis for ttl.
// Cache failures fall through to the underlying source.
type CachedSource struct {
	source Source
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCachedSource creates new CachedSource instance
func NewCachedSource(source Source, client *redis.Client, fiat string, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		client: client,
		key:    cacheKeyPrefix + fiat,
		ttl:    ttl,
	}
}

func (c *CachedSource) GetRates(ctx context.Context) (models.Rates, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		if rates, err := decodeRates(raw); err == nil {
			return rates, nil
		}
		logger.Log.Warn("drop malformed cached rates", zap.String("key", c.key))
	case !errors.Is(err, redis.Nil):
		logger.Log.Warn("rates cache unavailable", zap.Error(err))
	}

	rates, err := c.source.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	if payload, err := encodeRates(rates); err == nil {
		if err := c.client.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
			logger.Log.Warn("store rates in cache", zap.Error(err))
		}
	}

	return rates, nil
}

func encodeRates(rates models.Rates) ([]byte, error) {
	m := make(map[string]string, len(rates))
	for asset, rate := range rates {
		m[asset.String()] = rate.String()
	}
	return json.Marshal(m)
}

func decodeRates(raw []byte) (models.Rates, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("empty rates")
	}
	rates := make(models.Rates, len(m))
	for asset, s := range m {
		rate, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		rates[models.Asset(asset)] = rate
	}
	return rates, nil
}
