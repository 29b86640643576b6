package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
)

// memStore is in-memory order store
type memStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	nextID uint64
	// codes rejected by CreateOrder as already existing
	taken map[string]bool
}

func newMemStore(orders ...models.Order) *memStore {
	s := &memStore{orders: map[string]*models.Order{}, taken: map[string]bool{}}
	for _, o := range orders {
		o := o
		s.nextID++
		o.ID = s.nextID
		s.orders[o.Code] = &o
	}
	return s
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.Code]; ok || s.taken[order.Code] {
		return nil, models.ErrConflictData
	}
	created := *order
	s.nextID++
	created.ID = s.nextID
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	s.orders[created.Code] = &created

	out := created
	return &out, nil
}

func (s *memStore) GetOrderByCode(_ context.Context, code string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[code]
	if !ok {
		return nil, models.ErrDataNotFound
	}
	out := *o
	return &out, nil
}

func (s *memStore) SetOrderAsset(_ context.Context, code string, asset models.Asset, amount decimal.Decimal, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[code]
	if !ok {
		return models.ErrDataNotFound
	}
	if !o.IsPending() {
		return models.ErrOrderNotPending
	}
	o.Asset = &asset
	o.RequiredAmount = &amount
	o.ReceiveAddress = &address
	return nil
}

func (s *memStore) ListPendingPairs(context.Context) ([]models.PendingPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[models.PendingPair]bool{}
	pairs := []models.PendingPair{}
	for _, o := range s.orders {
		if !o.IsPending() || !o.HasAsset() {
			continue
		}
		p := models.PendingPair{Asset: *o.Asset, Address: *o.ReceiveAddress}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Asset != pairs[j].Asset {
			return pairs[i].Asset < pairs[j].Asset
		}
		return pairs[i].Address < pairs[j].Address
	})
	return pairs, nil
}

func (s *memStore) ListPendingFor(_ context.Context, asset models.Asset, address string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if o.IsPending() && o.HasAsset() && *o.Asset == asset && *o.ReceiveAddress == address {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *memStore) SetPaid(_ context.Context, code, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPaidLocked(code, txID)
}

func (s *memStore) setPaidLocked(code, txID string) error {
	o, ok := s.orders[code]
	if !ok {
		return models.ErrDataNotFound
	}
	if !o.IsPending() {
		return models.ErrOrderNotPending
	}
	for _, other := range s.orders {
		if other.TxID != nil && *other.TxID == txID {
			return models.ErrConflictData
		}
	}
	o.Status = models.OrderStatusPaid
	o.TxID = &txID
	return nil
}

func (s *memStore) status(code string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[code].Status
}

func (s *memStore) paidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPaid {
			n++
		}
	}
	return n
}

// memLedger is in-memory seen transactions ledger
type memLedger struct {
	mu    sync.Mutex
	seen  map[string]bool
	marks int
}

func newMemLedger() *memLedger {
	return &memLedger{seen: map[string]bool{}}
}

func (l *memLedger) HasSeen(_ context.Context, txID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[txID], nil
}

func (l *memLedger) MarkSeen(_ context.Context, txID string, _ models.Asset, _ decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[txID] = true
	l.marks++
	return nil
}

// settlingStore adds atomic settlement to memStore
type settlingStore struct {
	*memStore
	ledger  *memLedger
	settled int
}

func (s *settlingStore) SettleOrder(_ context.Context, code string, t models.Transfer) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()

	if s.ledger.seen[t.TxID] {
		return nil, models.ErrConflictData
	}
	if err := s.setPaidLocked(code, t.TxID); err != nil {
		return nil, err
	}
	s.ledger.seen[t.TxID] = true
	s.settled++

	out := *s.orders[code]
	return &out, nil
}

// fakeAdapter serves transfers per address
type fakeAdapter struct {
	asset models.Asset

	mu        sync.Mutex
	transfers map[string][]models.Transfer
	err       error
	panicMsg  string
	calls     int
}

func newFakeAdapter(asset models.Asset) *fakeAdapter {
	return &fakeAdapter{asset: asset, transfers: map[string][]models.Transfer{}}
}

func (a *fakeAdapter) Asset() models.Asset {
	return a.asset
}

func (a *fakeAdapter) FetchTransfers(_ context.Context, address string) ([]models.Transfer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	if a.err != nil {
		return nil, a.err
	}
	return append([]models.Transfer(nil), a.transfers[address]...), nil
}

func (a *fakeAdapter) set(address string, transfers ...models.Transfer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transfers[address] = transfers
}

// recordingNotifier records emitted events
type recordingNotifier struct {
	mu          sync.Mutex
	settlements []models.Settlement
	created     []models.Order
	err         error
}

func (r *recordingNotifier) NotifySettlement(_ context.Context, s models.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements = append(r.settlements, s)
	return r.err
}

func (r *recordingNotifier) NotifyNewOrder(_ context.Context, o models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, o)
	return r.err
}

func pendingOrder(code string, asset models.Asset, address, amount string, createdAt time.Time) models.Order {
	a := asset
	addr := address
	required := decimal.RequireFromString(amount)
	return models.Order{
		Code:           code,
		UserID:         7,
		Username:       "buyer",
		ProductLabel:   "1 plaque",
		FiatPrice:      decimal.NewFromInt(50),
		Asset:          &a,
		RequiredAmount: &required,
		ReceiveAddress: &addr,
		Status:         models.OrderStatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func transfer(txID string, asset models.Asset, to, amount string, confirmations int64) models.Transfer {
	return models.Transfer{
		TxID:          txID,
		Asset:         asset,
		To:            to,
		Amount:        decimal.RequireFromString(amount),
		Confirmations: confirmations,
	}
}
