package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	codePrefix       = "DRA"
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLen    = 4
	codeAttempts     = 3
	requiredAmountDP = 8
)

// OrderRepository is interface for interacting with order-related data
type OrderRepository interface {
	// CreateOrder inserts new order to database
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	// GetOrderByCode returns order by code
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	// SetOrderAsset sets asset, required amount and receiving address of pending order
	SetOrderAsset(ctx context.Context, code string, asset models.Asset, amount decimal.Decimal, address string) error
}

// RateSource returns fiat prices of assets
type RateSource interface {
	GetRates(ctx context.Context) (models.Rates, error)
}

// OrderNotifier is told about orders awaiting payment
type OrderNotifier interface {
	NotifyNewOrder(ctx context.Context, order models.Order) error
}

// OrderService creates orders and prices them in the chosen asset
type OrderService struct {
	repo      OrderRepository
	rates     RateSource
	notifier  OrderNotifier
	addresses map[models.Asset]string
	feeBuffer decimal.Decimal
	now       func() time.Time
	newCode   func(day time.Time) (string, error)
}

// NewOrderService creates new OrderService instance.
// addresses holds receiving address of every enabled asset.
func NewOrderService(
	repo OrderRepository,
	rates RateSource,
	notifier OrderNotifier,
	addresses map[models.Asset]string,
	feeBuffer decimal.Decimal,
) *OrderService {
	return &OrderService{
		repo:      repo,
		rates:     rates,
		notifier:  notifier,
		addresses: addresses,
		feeBuffer: feeBuffer,
		now:       time.Now,
		newCode:   GenerateOrderCode,
	}
}

// GenerateOrderCode returns random order code DRA-YYYYMMDD-XXXX for day
func GenerateOrderCode(day time.Time) (string, error) {
	suffix := make([]byte, codeSuffixLen)
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", codePrefix, day.UTC().Format("20060102"), suffix), nil
}

// CreateOrder creates pending order for catalogue product
func (os *OrderService) CreateOrder(ctx context.Context, userID int64, username, productKey string) (*models.Order, error) {
	product, ok := models.Catalogue[productKey]
	if !ok {
		return nil, models.ErrInvalidProduct
	}

	for attempt := 1; ; attempt++ {
		code, err := os.newCode(os.now())
		if err != nil {
			return nil, fmt.Errorf("generate order code: %w", err)
		}

		order, err := os.repo.CreateOrder(ctx, &models.Order{
			Code:         code,
			UserID:       userID,
			Username:     username,
			ProductLabel: product.Label,
			FiatPrice:    product.Price,
			Status:       models.OrderStatusPending,
		})
		if err == nil {
			logger.Log.Info("order created",
				zap.String("order", order.Code),
				zap.Int64("user_id", userID),
				zap.String("product", product.Key))
			return order, nil
		}
		if !errors.Is(err, models.ErrConflictData) || attempt >= codeAttempts {
			return nil, err
		}

		logger.Log.Debug("order code taken, retrying", zap.String("order", code), zap.Int("attempt", attempt))
	}
}

// GetOrder returns order of user
func (os *OrderService) GetOrder(ctx context.Context, userID int64, code string) (*models.Order, error) {
	order, err := os.repo.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, models.ErrForbidden
	}
	return order, nil
}

// SelectAsset prices pending order in asset and assigns receiving address
func (os *OrderService) SelectAsset(ctx context.Context, userID int64, code string, asset models.Asset) (*models.Order, error) {
	order, err := os.GetOrder(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !order.IsPending() {
		return nil, models.ErrOrderNotPending
	}

	address, ok := os.addresses[asset]
	if !ok || address == "" {
		return nil, models.ErrAssetNotSupported
	}

	rates, err := os.rates.GetRates(ctx)
	if err != nil {
		logger.Log.Warn("get rates", zap.String("order", code), zap.Error(err))
		return nil, models.ErrRatesUnavailable
	}
	if rates == nil {
		return nil, models.ErrRatesUnavailable
	}
	rate, ok := rates[asset]
	if !ok || !rate.IsPositive() {
		return nil, models.ErrAssetNotSupported
	}

	required := RequiredAmount(order.FiatPrice, rate, os.feeBuffer)

	if err := os.repo.SetOrderAsset(ctx, code, asset, required, address); err != nil {
		return nil, err
	}

	order.Asset = &asset
	order.RequiredAmount = &required
	order.ReceiveAddress = &address

	if err := os.notifier.NotifyNewOrder(ctx, *order); err != nil {
		logger.Log.Error("notify new order", zap.String("order", code), zap.Error(err))
	}

	return order, nil
}

// RequiredAmount converts fiat price to asset amount with fee buffer, rounded to 8 places
func RequiredAmount(fiatPrice, rate, feeBuffer decimal.Decimal) decimal.Decimal {
	return fiatPrice.
		DivRound(rate, 16).
		Mul(decimal.NewFromInt(1).Add(feeBuffer)).
		Round(requiredAmountDP)
}
