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

const (
	insertSeenQuery = `
						INSERT INTO seen_txs (txid, asset, amount)
						VALUES ($1, $2, $3)
						ON CONFLICT (txid) DO NOTHING
`
	selectSeenQuery = `
						SELECT EXISTS (SELECT 1 FROM seen_txs WHERE txid = $1)
`
	selectSeenTxQuery = `
						SELECT txid, asset, amount::text, detected_at FROM seen_txs WHERE txid = $1
`
)

// SeenRepository is ledger of processed transactions
type SeenRepository struct {
	db *postgres.DB
}

// NewSeenRepository creates new SeenRepository instance
func NewSeenRepository(db *postgres.DB) *SeenRepository {
	return &SeenRepository{db: db}
}

// HasSeen reports whether transaction has already been processed
func (sr *SeenRepository) HasSeen(ctx context.Context, txID string) (bool, error) {
	var seen bool
	if err := sr.db.QueryRow(ctx, selectSeenQuery, txID).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

// MarkSeen records transaction as processed. Repeated calls are no-op.
func (sr *SeenRepository) MarkSeen(ctx context.Context, txID string, asset models.Asset, amount decimal.Decimal) error {
	_, err := sr.db.Exec(ctx, insertSeenQuery, txID, string(asset), amount.String())
	return err
}

// GetSeen returns ledger record of processed transaction
func (sr *SeenRepository) GetSeen(ctx context.Context, txID string) (*models.SeenTransaction, error) {
	var (
		tx            models.SeenTransaction
		asset, amount string
	)
	err := sr.db.QueryRow(ctx, selectSeenTxQuery, txID).Scan(&tx.TxID, &asset, &amount, &tx.DetectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	tx.Asset = models.Asset(asset)
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse seen amount: %w", err)
	}
	return &tx, nil
}
