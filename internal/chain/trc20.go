package chain

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tronGridProvider = "trongrid"
	tronScanProvider = "tronscan"

	// Tron produces a block every 3 seconds
	tronBlockTime = 3 * time.Second

	// used when a provider omits token decimals
	trc20DefaultDecimals = 6
	trc20RawThreshold    = 1000
)

var errProviderUnsuccessful = errors.New("provider reported failure")

// candidate field names, tried in order, across supported providers
var (
	trc20TxFields        = []string{"transaction_id", "transactionHash", "hash", "txID"}
	trc20ToFields        = []string{"to", "to_address", "toAddress"}
	trc20ValueFields     = []string{"value", "quant", "amount"}
	trc20DecimalsFields  = []string{"token_info.decimals", "tokenInfo.tokenDecimal", "decimals"}
	trc20ContractFields  = []string{"token_info.address", "tokenInfo.tokenId", "contract_address"}
	trc20ConfirmFields   = []string{"confirmations"}
	trc20TimestampFields = []string{"block_timestamp", "block_ts", "timestamp"}
	trc20ListFields      = []string{"data", "token_transfers", "transfers"}
)

// TRC20Adapter reads token transfers from TronGrid, falling back to Tronscan
type TRC20Adapter struct {
	client      *http.Client
	primaryURL  string
	fallbackURL string
	apiKey      string
	contract    string
	limit       int
	now         func() time.Time
}

// NewTRC20Adapter creates new TRC20Adapter instance
func NewTRC20Adapter(client *http.Client, primaryURL, fallbackURL, apiKey, contract string) *TRC20Adapter {
	return &TRC20Adapter{
		client:      client,
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		apiKey:      apiKey,
		contract:    contract,
		limit:       50,
		now:         time.Now,
	}
}

func (a *TRC20Adapter) Asset() models.Asset {
	return models.AssetUSDT
}

// FetchTransfers returns token transfers received by address
func (a *TRC20Adapter) FetchTransfers(ctx context.Context, address string) ([]models.Transfer, error) {
	rows, err := a.fetchPrimary(ctx, address)
	if err != nil {
		logger.Log.Warn("trc20 primary provider failed, using fallback",
			zap.String("provider", tronGridProvider),
			zap.String("address", address),
			zap.Error(err))

		rows, err = a.fetchFallback(ctx, address)
		if err != nil {
			logger.Log.Warn("trc20 fallback provider failed",
				zap.String("provider", tronScanProvider),
				zap.String("address", address),
				zap.Error(err))
			return nil, err
		}
	}

	var transfers []models.Transfer
	for _, row := range rows {
		if t, ok := a.normalize(row, address); ok {
			transfers = append(transfers, t)
		}
	}

	return transfers, nil
}

func (a *TRC20Adapter) fetchPrimary(ctx context.Context, address string) ([]record, error) {
	// GET /v1/accounts/{address}/transactions/trc20
	u, err := url.JoinPath(a.primaryURL, "v1", "accounts", address, "transactions", "trc20")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("only_to", "true")
	q.Set("only_confirmed", "true")
	q.Set("limit", strconv.Itoa(a.limit))
	if a.contract != "" {
		q.Set("contract_address", a.contract)
	}

	header := http.Header{}
	if a.apiKey != "" {
		header.Set("TRON-PRO-API-KEY", a.apiKey)
	}

	var body map[string]any
	if err := getJSON(ctx, a.client, tronGridProvider, u+"?"+q.Encode(), header, &body); err != nil {
		return nil, err
	}
	if ok, present := record(body).boolean("success"); present && !ok {
		return nil, &ProviderError{Provider: tronGridProvider, Err: errProviderUnsuccessful}
	}

	return listOf(body, tronGridProvider)
}

func (a *TRC20Adapter) fetchFallback(ctx context.Context, address string) ([]record, error) {
	// GET /token_trc20/transfers?toAddress=...
	u, err := url.JoinPath(a.fallbackURL, "token_trc20", "transfers")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("toAddress", address)
	q.Set("start", "0")
	q.Set("limit", strconv.Itoa(a.limit))
	if a.contract != "" {
		q.Set("contract_address", a.contract)
	}

	var body map[string]any
	if err := getJSON(ctx, a.client, tronScanProvider, u+"?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	return listOf(body, tronScanProvider)
}

func listOf(body map[string]any, provider string) ([]record, error) {
	v, _, ok := record(body).lookup(trc20ListFields...)
	if !ok {
		return nil, &ProviderError{Provider: provider, Err: errFieldMissing}
	}
	if _, isList := v.([]any); !isList {
		return nil, &ProviderError{Provider: provider, Err: errProviderUnsuccessful}
	}
	return records(v), nil
}

func (a *TRC20Adapter) normalize(row record, address string) (models.Transfer, bool) {
	hash, err := row.str(trc20TxFields...)
	if err != nil || hash == "" {
		logger.Log.Debug("skip trc20 record", zap.Error(err))
		return models.Transfer{}, false
	}

	to, err := row.str(trc20ToFields...)
	if err != nil || to != address {
		return models.Transfer{}, false
	}

	if a.contract != "" {
		contract, err := row.str(trc20ContractFields...)
		if err != nil || contract != a.contract {
			logger.Log.Debug("skip foreign token transfer", zap.String("tx", hash), zap.String("contract", contract))
			return models.Transfer{}, false
		}
	}

	if reverted, ok := row.boolean("revert"); ok && reverted {
		return models.Transfer{}, false
	}
	if result, err := row.str("finalResult"); err == nil && result != "SUCCESS" {
		return models.Transfer{}, false
	}

	raw, err := row.decimal(trc20ValueFields...)
	if err != nil {
		logger.Log.Debug("skip trc20 record", zap.String("tx", hash), zap.Error(err))
		return models.Transfer{}, false
	}

	decimals, hasDecimals, err := row.int(trc20DecimalsFields...)
	if err != nil {
		hasDecimals = false
	}

	return models.Transfer{
		TxID:          hash,
		Asset:         models.AssetUSDT,
		To:            address,
		Amount:        scaleTokenAmount(raw, decimals, hasDecimals),
		Confirmations: a.confirmations(row),
	}, true
}

// scaleTokenAmount converts raw token value to whole tokens.
// Without explicit decimals, values above trc20RawThreshold are assumed to be minor units.
func scaleTokenAmount(raw decimal.Decimal, decimals int64, hasDecimals bool) decimal.Decimal {
	if hasDecimals && decimals >= 0 {
		return raw.Shift(-int32(decimals))
	}
	if raw.GreaterThan(decimal.NewFromInt(trc20RawThreshold)) {
		return raw.Shift(-trc20DefaultDecimals)
	}
	return raw
}

func (a *TRC20Adapter) confirmations(row record) int64 {
	if confirmed, ok := row.boolean("confirmed"); ok && !confirmed {
		return 0
	}
	if n, ok, err := row.int(trc20ConfirmFields...); ok && err == nil && n >= 0 {
		return n
	}

	ts, ok, err := row.int(trc20TimestampFields...)
	if !ok || err != nil || ts <= 0 {
		return 0
	}
	elapsed := a.now().Sub(time.UnixMilli(ts))
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed / tronBlockTime)
}
