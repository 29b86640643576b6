// Package notify delivers settlement and order events to collaborators.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/models"
	"go.uber.org/zap"
)

// Sink receives order events
type Sink interface {
	NotifySettlement(ctx context.Context, s models.Settlement) error
	NotifyNewOrder(ctx context.Context, order models.Order) error
}

// SettlementEventID returns stable event id for settlement of order by transaction
func SettlementEventID(orderCode, txID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("settlement|"+orderCode+"|"+txID)).String()
}

// LogSink writes events to the log
type LogSink struct{}

func (LogSink) NotifySettlement(_ context.Context, s models.Settlement) error {
	logger.Log.Info("order settled",
		zap.String("event_id", s.EventID),
		zap.String("order", s.OrderCode),
		zap.Int64("user_id", s.UserID),
		zap.String("asset", s.Asset.String()),
		zap.String("tx", s.TxID),
		zap.String("amount", s.Amount.String()))
	return nil
}

func (LogSink) NotifyNewOrder(_ context.Context, order models.Order) error {
	fields := []zap.Field{
		zap.String("order", order.Code),
		zap.String("product", order.ProductLabel),
		zap.String("fiat_price", order.FiatPrice.StringFixed(2)),
	}
	if order.HasAsset() {
		fields = append(fields,
			zap.String("asset", order.Asset.String()),
			zap.String("required_amount", order.RequiredAmount.StringFixed(8)))
	}
	logger.Log.Info("order awaiting payment", fields...)
	return nil
}

// MultiSink fans events out to all sinks; every sink is tried
type MultiSink []Sink

func (m MultiSink) NotifySettlement(ctx context.Context, s models.Settlement) error {
	var result *multierror.Error
	for _, sink := range m {
		if err := sink.NotifySettlement(ctx, s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m MultiSink) NotifyNewOrder(ctx context.Context, order models.Order) error {
	var result *multierror.Error
	for _, sink := range m {
		if err := sink.NotifyNewOrder(ctx, order); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
