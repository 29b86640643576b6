package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"go.uber.org/zap"
)

const (
	ethProvider = "etherscan"
	// wei per ether, as exponent
	ethDecimals = 18
)

// ETHAdapter reads the account transaction list from an Etherscan-compatible API
type ETHAdapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limit   int
}

// NewETHAdapter creates new ETHAdapter instance
func NewETHAdapter(client *http.Client, baseURL, apiKey string) *ETHAdapter {
	return &ETHAdapter{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		limit:   50,
	}
}

func (a *ETHAdapter) Asset() models.Asset {
	return models.AssetETH
}

// FetchTransfers returns successful transfers whose destination is address
func (a *ETHAdapter) FetchTransfers(ctx context.Context, address string) ([]models.Transfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(a.limit))
	q.Set("sort", "desc")
	if a.apiKey != "" {
		q.Set("apikey", a.apiKey)
	}

	var body map[string]any
	if err := getJSON(ctx, a.client, ethProvider, a.baseURL+"?"+q.Encode(), nil, &body); err != nil {
		logger.Log.Warn("eth provider request failed",
			zap.String("provider", ethProvider),
			zap.String("address", address),
			zap.Error(err))
		return nil, err
	}

	resp := record(body)
	result, _, _ := resp.lookup("result")
	rows, isList := result.([]any)
	if status, _ := resp.str("status"); status != "1" {
		// status 0 with an empty list means no transactions yet
		if isList && len(rows) == 0 {
			return nil, nil
		}
		msg, _ := resp.str("message")
		err := &ProviderError{Provider: ethProvider, Err: fmt.Errorf("status %q: %s", status, msg)}
		logger.Log.Warn("eth provider returned error", zap.String("address", address), zap.Error(err))
		return nil, err
	}
	if !isList {
		err := &ProviderError{Provider: ethProvider, Err: fmt.Errorf("result is not a list")}
		logger.Log.Warn("eth provider returned error", zap.String("address", address), zap.Error(err))
		return nil, err
	}

	var transfers []models.Transfer
	for _, row := range records(rows) {
		if t, ok := a.normalize(row, address); ok {
			transfers = append(transfers, t)
		}
	}

	return transfers, nil
}

func (a *ETHAdapter) normalize(row record, address string) (models.Transfer, bool) {
	to, err := row.str("to")
	if err != nil || !strings.EqualFold(to, address) {
		return models.Transfer{}, false
	}
	if isErr, _ := row.str("isError"); isErr == "1" {
		return models.Transfer{}, false
	}

	hash, err := row.str("hash")
	if err != nil || hash == "" {
		logger.Log.Debug("skip eth record", zap.String("provider", ethProvider), zap.Error(err))
		return models.Transfer{}, false
	}

	value, err := row.decimal("value")
	if err != nil {
		logger.Log.Debug("skip eth record", zap.String("provider", ethProvider), zap.String("tx", hash), zap.Error(err))
		return models.Transfer{}, false
	}

	conf, _, err := row.int("confirmations")
	if err != nil || conf < 0 {
		conf = 0
	}

	return models.Transfer{
		TxID:          strings.ToLower(hash),
		Asset:         models.AssetETH,
		To:            address,
		Amount:        value.Shift(-ethDecimals),
		Confirmations: conf,
	}, true
}
