package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/rookgm/paywatch/internal/repository/postgres"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, code, user_id, username, product_label, fiat_price::text, asset,
						required_amount::text, receive_address, status, txid, created_at, updated_at`

const (
	insertOrderQuery = `
						INSERT INTO orders (code, user_id, username, product_label, fiat_price, status)
						VALUES ($1, $2, $3, $4, $5, $6)
						RETURNING ` + orderColumns
	selectOrderByCodeQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE code = $1
`
	updateOrderAssetQuery = `
						UPDATE orders
						SET asset = $1, required_amount = $2, receive_address = $3, updated_at = now()
						WHERE code = $4 AND status = 'PENDING'
`
	selectPendingPairsQuery = `
						SELECT DISTINCT asset, receive_address FROM orders
						WHERE status = 'PENDING' AND asset IS NOT NULL AND receive_address IS NOT NULL
						ORDER BY asset, receive_address
`
	selectPendingForQuery = `
						SELECT ` + orderColumns + ` FROM orders
						WHERE status = 'PENDING' AND asset = $1 AND receive_address = $2
						ORDER BY created_at, code
`
	updateOrderPaidQuery = `
						UPDATE orders
						SET status = 'PAID', txid = $1, updated_at = now()
						WHERE code = $2 AND status = 'PENDING'
						RETURNING ` + orderColumns
)

// OrderRepository stores orders in PostgreSQL
type OrderRepository struct {
	db *postgres.DB
}

// NewOrderRepository creates new OrderRepository instance
func NewOrderRepository(db *postgres.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts new order to database. Existing code is never overwritten.
func (or *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	row := or.db.QueryRow(ctx, insertOrderQuery,
		order.Code, order.UserID, order.Username, order.ProductLabel, order.FiatPrice.String(), order.Status)

	created, err := scanOrder(row)
	if err != nil {
		if or.db.ErrorCode(err) == postgres.UniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	return created, nil
}

// GetOrderByCode returns order by code
func (or *OrderRepository) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	order, err := scanOrder(or.db.QueryRow(ctx, selectOrderByCodeQuery, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return order, nil
}

// SetOrderAsset sets settlement asset, required amount and address of pending order together
func (or *OrderRepository) SetOrderAsset(ctx context.Context, code string, asset models.Asset, amount decimal.Decimal, address string) error {
	cmd, err := or.db.Exec(ctx, updateOrderAssetQuery, string(asset), amount.String(), address, code)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return or.missOrNotPending(ctx, code)
	}

	return nil
}

// ListPendingPairs returns distinct (asset, address) pairs having pending orders
func (or *OrderRepository) ListPendingPairs(ctx context.Context) ([]models.PendingPair, error) {
	rows, err := or.db.Query(ctx, selectPendingPairsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := []models.PendingPair{}

	for rows.Next() {
		var asset, address string
		if err := rows.Scan(&asset, &address); err != nil {
			return nil, err
		}
		pairs = append(pairs, models.PendingPair{Asset: models.Asset(asset), Address: address})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// ListPendingFor returns pending orders for asset and address, earliest first
func (or *OrderRepository) ListPendingFor(ctx context.Context, asset models.Asset, address string) ([]models.Order, error) {
	rows, err := or.db.Query(ctx, selectPendingForQuery, string(asset), address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// SetPaid marks pending order as paid by transaction
func (or *OrderRepository) SetPaid(ctx context.Context, code, txID string) error {
	_, err := scanOrder(or.db.QueryRow(ctx, updateOrderPaidQuery, txID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return or.missOrNotPending(ctx, code)
		}
		if or.db.ErrorCode(err) == postgres.UniqueViolationCode {
			return models.ErrConflictData
		}
		return err
	}

	return nil
}

// SettleOrder marks order paid and records transaction as seen in one transaction.
// It returns models.ErrConflictData when transaction has already settled something.
func (or *OrderRepository) SettleOrder(ctx context.Context, code string, transfer models.Transfer) (*models.Order, error) {
	tx, err := or.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	cmd, err := tx.Exec(ctx, insertSeenQuery, transfer.TxID, string(transfer.Asset), transfer.Amount.String())
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, models.ErrConflictData
	}

	order, err := scanOrder(tx.QueryRow(ctx, updateOrderPaidQuery, transfer.TxID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, or.missOrNotPending(ctx, code)
		}
		if or.db.ErrorCode(err) == postgres.UniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	committed = true

	return order, nil
}

func (or *OrderRepository) missOrNotPending(ctx context.Context, code string) error {
	if _, err := or.GetOrderByCode(ctx, code); err != nil {
		return err
	}
	return models.ErrOrderNotPending
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order                 models.Order
		fiatPrice             string
		asset, required, addr *string
	)

	err := row.Scan(&order.ID, &order.Code, &order.UserID, &order.Username, &order.ProductLabel, &fiatPrice,
		&asset, &required, &addr, &order.Status, &order.TxID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	order.FiatPrice, err = decimal.NewFromString(fiatPrice)
	if err != nil {
		return nil, fmt.Errorf("parse fiat price: %w", err)
	}

	if asset != nil && required != nil && addr != nil {
		a := models.Asset(*asset)
		amount, err := decimal.NewFromString(*required)
		if err != nil {
			return nil, fmt.Errorf("parse required amount: %w", err)
		}
		order.Asset = &a
		order.RequiredAmount = &amount
		order.ReceiveAddress = addr
	}

	return &order, nil
}
