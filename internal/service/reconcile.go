package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rookgm/paywatch/internal/chain"
	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/matcher"
	"github.com/rookgm/paywatch/internal/metrics"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/rookgm/paywatch/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PendingOrderStore is the part of order store used by reconciliation
type PendingOrderStore interface {
	// ListPendingPairs returns distinct (asset, address) pairs having pending orders
	ListPendingPairs(ctx context.Context) ([]models.PendingPair, error)
	// ListPendingFor returns pending orders for asset and address
	ListPendingFor(ctx context.Context, asset models.Asset, address string) ([]models.Order, error)
	// SetPaid marks pending order as paid by transaction
	SetPaid(ctx context.Context, code, txID string) error
}

// Settler marks order paid and records transaction as seen atomically
type Settler interface {
	SettleOrder(ctx context.Context, code string, transfer models.Transfer) (*models.Order, error)
}

// Ledger records processed transactions
type Ledger interface {
	HasSeen(ctx context.Context, txID string) (bool, error)
	MarkSeen(ctx context.Context, txID string, asset models.Asset, amount decimal.Decimal) error
}

// SettlementNotifier receives settlement events
type SettlementNotifier interface {
	NotifySettlement(ctx context.Context, s models.Settlement) error
}

// ReconcileConfig is reconciliation settings
type ReconcileConfig struct {
	// minimum confirmations per asset
	Confirmations map[models.Asset]int64
	Tolerance     decimal.Decimal
	// number of pairs processed in parallel
	Concurrency int
}

// ReconcileService settles pending orders from observed transfers
type ReconcileService struct {
	orders   PendingOrderStore
	ledger   Ledger
	notifier SettlementNotifier
	adapters map[models.Asset]chain.Adapter
	matcher  *matcher.Matcher
	cfg      ReconcileConfig
	metrics  *metrics.Reconciler
	now      func() time.Time
}

// NewReconcileService creates new ReconcileService instance
func NewReconcileService(
	orders PendingOrderStore,
	ledger Ledger,
	notifier SettlementNotifier,
	adapters []chain.Adapter,
	cfg ReconcileConfig,
	m *metrics.Reconciler,
) *ReconcileService {
	byAsset := make(map[models.Asset]chain.Adapter, len(adapters))
	for _, a := range adapters {
		byAsset[a.Asset()] = a
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if m == nil {
		m = metrics.NewReconciler(nil)
	}

	return &ReconcileService{
		orders:   orders,
		ledger:   ledger,
		notifier: notifier,
		adapters: byAsset,
		matcher:  matcher.New(cfg.Tolerance),
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
	}
}

// CheckAssetsInUse fails when pending orders wait on an asset that is not enabled
func CheckAssetsInUse(ctx context.Context, orders PendingOrderStore, enabled func(models.Asset) bool) error {
	pairs, err := orders.ListPendingPairs(ctx)
	if err != nil {
		return fmt.Errorf("list pending pairs: %w", err)
	}

	var result *multierror.Error
	for _, pair := range pairs {
		if !enabled(pair.Asset) {
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", pair.Asset, pair.Address, models.ErrAssetNotSupported))
		}
	}
	return result.ErrorOrNil()
}

// RunCycle performs one reconciliation pass over all pending pairs.
// A failing pair never stops other pairs; their errors are returned together.
// Provider failures are only logged and counted, the pair is retried next cycle.
func (rs *ReconcileService) RunCycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		rs.metrics.ObserveCycle(err, time.Since(start))
	}()

	pairs, err := rs.orders.ListPendingPairs(ctx)
	if err != nil {
		return fmt.Errorf("list pending pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rs.cfg.Concurrency)

	for _, pair := range pairs {
		g.Go(func() error {
			if err := rs.reconcilePair(gctx, pair); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s %s: %w", pair.Asset, pair.Address, err))
				mu.Unlock()
			}
			// pair errors must not cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

func (rs *ReconcileService) reconcilePair(ctx context.Context, pair models.PendingPair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Log.Error("reconcile pair panicked",
				zap.String("asset", pair.Asset.String()),
				zap.String("address", pair.Address),
				zap.Any("panic", r))
		}
	}()

	adapter, ok := rs.adapters[pair.Asset]
	if !ok {
		logger.Log.Error("no chain adapter for asset",
			zap.String("asset", pair.Asset.String()),
			zap.String("address", pair.Address))
		return models.ErrAssetNotSupported
	}

	transfers, err := adapter.FetchTransfers(ctx, pair.Address)
	rs.metrics.ObserveFetch(pair.Asset, err)
	if err != nil {
		// next cycle retries
		logger.Log.Warn("fetch transfers",
			zap.String("asset", pair.Asset.String()),
			zap.String("address", pair.Address),
			zap.Error(err))
		return nil
	}
	if len(transfers) == 0 {
		return nil
	}

	pending, err := rs.orders.ListPendingFor(ctx, pair.Asset, pair.Address)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	var result *multierror.Error
	minConf := rs.cfg.Confirmations[pair.Asset]

	for _, t := range transfers {
		if len(pending) == 0 {
			break
		}

		if t.Confirmations < minConf {
			rs.metrics.IncSkipped(pair.Asset, metrics.ReasonUnconfirmed)
			logger.Log.Debug("transfer not confirmed yet",
				zap.String("asset", pair.Asset.String()),
				zap.String("tx", t.TxID),
				zap.Int64("confirmations", t.Confirmations),
				zap.Int64("required", minConf))
			continue
		}

		seen, err := rs.ledger.HasSeen(ctx, t.TxID)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("check seen %s: %w", t.TxID, err))
			continue
		}
		if seen {
			rs.metrics.IncSkipped(pair.Asset, metrics.ReasonSeen)
			continue
		}

		code, ok := rs.matcher.Match(pair.Asset, pair.Address, t.Amount, pending)
		if !ok {
			rs.metrics.IncSkipped(pair.Asset, metrics.ReasonUnmatched)
			logger.Log.Debug("transfer matches no pending order",
				zap.String("asset", pair.Asset.String()),
				zap.String("address", pair.Address),
				zap.String("tx", t.TxID),
				zap.String("amount", t.Amount.String()))
			continue
		}

		order := findOrder(pending, code)
		if err := rs.settle(ctx, order, t); err != nil {
			if errors.Is(err, models.ErrOrderNotPending) || errors.Is(err, models.ErrConflictData) {
				logger.Log.Warn("settlement skipped",
					zap.String("order", code),
					zap.String("tx", t.TxID),
					zap.Error(err))
				pending = removeOrder(pending, code)
				continue
			}
			result = multierror.Append(result, fmt.Errorf("settle %s: %w", code, err))
			continue
		}

		pending = removeOrder(pending, code)
	}

	return result.ErrorOrNil()
}

// settle transitions order to paid, records transaction and emits settlement event.
// The event is emitted only after the order transition is durable.
func (rs *ReconcileService) settle(ctx context.Context, order models.Order, t models.Transfer) error {
	if settler, ok := rs.orders.(Settler); ok {
		if _, err := settler.SettleOrder(ctx, order.Code, t); err != nil {
			return err
		}
	} else {
		if err := rs.orders.SetPaid(ctx, order.Code, t.TxID); err != nil {
			return err
		}
		// a failed mark leaves the order paid, so the transfer can no longer match it
		if err := rs.ledger.MarkSeen(ctx, t.TxID, t.Asset, t.Amount); err != nil {
			logger.Log.Error("mark transaction seen",
				zap.String("order", order.Code),
				zap.String("tx", t.TxID),
				zap.Error(err))
		}
	}

	rs.metrics.IncSettled(t.Asset)

	s := models.Settlement{
		EventID:   notify.SettlementEventID(order.Code, t.TxID),
		OrderCode: order.Code,
		UserID:    order.UserID,
		Asset:     t.Asset,
		TxID:      t.TxID,
		Amount:    t.Amount,
		SettledAt: rs.now().UTC(),
	}

	logger.Log.Info("order paid",
		zap.String("order", order.Code),
		zap.String("asset", t.Asset.String()),
		zap.String("tx", t.TxID),
		zap.String("amount", t.Amount.String()),
		zap.Int64("confirmations", t.Confirmations))

	if err := rs.notifier.NotifySettlement(ctx, s); err != nil {
		logger.Log.Error("notify settlement",
			zap.String("order", order.Code),
			zap.String("tx", t.TxID),
			zap.Error(err))
	}

	return nil
}

func findOrder(orders []models.Order, code string) models.Order {
	for _, o := range orders {
		if o.Code == code {
			return o
		}
	}
	return models.Order{Code: code}
}

func removeOrder(orders []models.Order, code string) []models.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.Code != code {
			out = append(out, o)
		}
	}
	return out
}
