package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is canonical incoming transfer normalized by a chain adapter.
// Amount is in the asset's natural unit (whole BTC, ETH, USDT).
type Transfer struct {
	TxID          string
	Asset         Asset
	To            string
	Amount        decimal.Decimal
	Confirmations int64
}

// SeenTransaction is a record that transaction has been processed for settlement
type SeenTransaction struct {
	TxID       string
	Asset      Asset
	Amount     decimal.Decimal
	DetectedAt time.Time
}

// Settlement is event emitted once order becomes paid
type Settlement struct {
	EventID   string          `json:"event_id"`
	OrderCode string          `json:"order_code"`
	UserID    int64           `json:"user_id"`
	Asset     Asset           `json:"asset"`
	TxID      string          `json:"tx_id"`
	Amount    decimal.Decimal `json:"amount"`
	SettledAt time.Time       `json:"settled_at"`
}

// Rates maps asset to its price in fiat currency
type Rates map[Asset]decimal.Decimal
