package chain

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"go.uber.org/zap"
)

const (
	btcProvider = "blockcypher"
	// satoshis per bitcoin, as exponent
	btcDecimals = 8
)

// BTCAdapter reads address history from a BlockCypher-compatible API
type BTCAdapter struct {
	client  *http.Client
	baseURL string
	limit   int
}

// NewBTCAdapter creates new BTCAdapter instance
func NewBTCAdapter(client *http.Client, baseURL string) *BTCAdapter {
	return &BTCAdapter{
		client:  client,
		baseURL: baseURL,
		limit:   50,
	}
}

func (a *BTCAdapter) Asset() models.Asset {
	return models.AssetBTC
}

// FetchTransfers returns incoming transfers for address.
// Confirmed and unconfirmed references are merged; outputs of one transaction are summed.
func (a *BTCAdapter) FetchTransfers(ctx context.Context, address string) ([]models.Transfer, error) {
	// GET /addrs/{address}?limit=N
	u, err := url.JoinPath(a.baseURL, "addrs", address)
	if err != nil {
		return nil, err
	}
	u += "?limit=" + strconv.Itoa(a.limit)

	var body map[string]any
	if err := getJSON(ctx, a.client, btcProvider, u, nil, &body); err != nil {
		logger.Log.Warn("btc provider request failed",
			zap.String("provider", btcProvider),
			zap.String("address", address),
			zap.Error(err))
		return nil, err
	}

	refs := append(records(body["txrefs"]), records(body["unconfirmed_txrefs"])...)

	var (
		order  []string
		byHash = make(map[string]*models.Transfer)
	)
	for _, ref := range refs {
		t, ok := a.normalize(ref, address)
		if !ok {
			continue
		}
		if prev, seen := byHash[t.TxID]; seen {
			prev.Amount = prev.Amount.Add(t.Amount)
			if t.Confirmations > prev.Confirmations {
				prev.Confirmations = t.Confirmations
			}
			continue
		}
		byHash[t.TxID] = &t
		order = append(order, t.TxID)
	}

	transfers := make([]models.Transfer, 0, len(order))
	for _, h := range order {
		transfers = append(transfers, *byHash[h])
	}

	return transfers, nil
}

func (a *BTCAdapter) normalize(ref record, address string) (models.Transfer, bool) {
	// tx_input_n == -1 marks an output paying this address
	if inputN, ok, err := ref.int("tx_input_n"); err != nil || (ok && inputN != -1) {
		return models.Transfer{}, false
	}

	hash, err := ref.str("tx_hash", "hash", "txid")
	if err != nil || hash == "" {
		logger.Log.Debug("skip btc record", zap.String("provider", btcProvider), zap.Error(err))
		return models.Transfer{}, false
	}

	value, err := ref.decimal("value")
	if err != nil {
		logger.Log.Debug("skip btc record", zap.String("provider", btcProvider), zap.String("tx", hash), zap.Error(err))
		return models.Transfer{}, false
	}

	conf, _, err := ref.int("confirmations")
	if err != nil || conf < 0 {
		conf = 0
	}

	return models.Transfer{
		TxID:          hash,
		Asset:         models.AssetBTC,
		To:            address,
		Amount:        value.Shift(-btcDecimals),
		Confirmations: conf,
	}, true
}
