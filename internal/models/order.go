package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// order status
const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
)

// Order is order entity.
// Asset, RequiredAmount and ReceiveAddress are either all set or all nil.
type Order struct {
	ID             uint64
	Code           string
	UserID         int64
	Username       string
	ProductLabel   string
	FiatPrice      decimal.Decimal
	Asset          *Asset
	RequiredAmount *decimal.Decimal
	ReceiveAddress *string
	Status         string
	TxID           *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsPending reports whether order still waits for payment
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// HasAsset reports whether buyer has chosen settlement asset
func (o *Order) HasAsset() bool {
	return o.Asset != nil && o.RequiredAmount != nil && o.ReceiveAddress != nil
}

// PendingPair is distinct (asset, address) pair with at least one pending order
type PendingPair struct {
	Asset   Asset
	Address string
}

// Product is an item of the catalogue
type Product struct {
	Key   string
	Label string
	Price decimal.Decimal
}

// Catalogue is list of products available for ordering
var Catalogue = map[string]Product{
	"pack1":  {Key: "pack1", Label: "1 plaque", Price: decimal.NewFromInt(50)},
	"pack10": {Key: "pack10", Label: "10 plaques", Price: decimal.NewFromInt(650)},
	"pack20": {Key: "pack20", Label: "20 plaques", Price: decimal.NewFromInt(1000)},
}
