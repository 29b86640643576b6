// Package rates provides fiat prices of settlement assets.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CoinGecko ids of supported assets
var coinIDs = map[models.Asset]string{
	models.AssetBTC:  "bitcoin",
	models.AssetETH:  "ethereum",
	models.AssetUSDT: "tether",
}

// Source returns fiat price per asset
type Source interface {
	GetRates(ctx context.Context) (models.Rates, error)
}

// CoinGecko queries simple/price endpoint
type CoinGecko struct {
	client  *http.Client
	baseURL string
	fiat    string
}

// NewCoinGecko creates new CoinGecko instance
func NewCoinGecko(client *http.Client, baseURL, fiat string) *CoinGecko {
	return &CoinGecko{
		client:  client,
		baseURL: baseURL,
		fiat:    strings.ToLower(fiat),
	}
}

// GetRates returns rates for all supported assets.
// Any failure is reported as models.ErrRatesUnavailable, never as a zero rate.
func (c *CoinGecko) GetRates(ctx context.Context) (models.Rates, error) {
	ids := make([]string, 0, len(coinIDs))
	for _, asset := range models.Assets {
		ids = append(ids, coinIDs[asset])
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", c.fiat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Log.Warn("rates request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrRatesUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Log.Warn("rates request failed", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", models.ErrRatesUnavailable, resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Log.Warn("rates response malformed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrRatesUnavailable, err)
	}

	rates := models.Rates{}
	for _, asset := range models.Assets {
		raw, ok := body[coinIDs[asset]][c.fiat]
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil || !rate.IsPositive() {
			continue
		}
		rates[asset] = rate
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no usable rates", models.ErrRatesUnavailable)
	}

	return rates, nil
}
