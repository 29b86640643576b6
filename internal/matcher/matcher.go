// Package matcher selects the pending order settled by an incoming transfer.
package matcher

import (
	"sort"

	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultTolerance is allowed underpayment fraction (0.1%)
var DefaultTolerance = decimal.RequireFromString("0.001")

// Matcher matches transfers to pending orders
type Matcher struct {
	tolerance decimal.Decimal
}

// New creates new Matcher with tolerance fraction
func New(tolerance decimal.Decimal) *Matcher {
	return &Matcher{tolerance: tolerance}
}

// Match returns code of the order settled by amount sent to address, or "" and false.
// Candidates are pending orders for asset and address; earliest created wins.
// Only underpayment is bounded: required*(1-tolerance) <= amount.
func (m *Matcher) Match(asset models.Asset, address string, amount decimal.Decimal, pending []models.Order) (string, bool) {
	candidates := make([]models.Order, 0, len(pending))
	for _, o := range pending {
		if !o.IsPending() || !o.HasAsset() {
			continue
		}
		if *o.Asset != asset || *o.ReceiveAddress != address {
			continue
		}
		candidates = append(candidates, o)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].Code < candidates[j].Code
	})

	factor := decimal.NewFromInt(1).Sub(m.tolerance)
	for _, o := range candidates {
		if o.RequiredAmount.Mul(factor).LessThanOrEqual(amount) {
			return o.Code, true
		}
	}

	return "", false
}
