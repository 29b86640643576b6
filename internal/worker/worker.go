package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rookgm/paywatch/internal/logger"
	"go.uber.org/zap"
)

// CycleRunner performs one reconciliation pass
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// PaymentWatcher is worker runs reconciliation cycles on a fixed interval
type PaymentWatcher struct {
	runner     CycleRunner
	interval   time.Duration
	startDelay time.Duration
}

// NewPaymentWatcher creates new payment watcher
func NewPaymentWatcher(runner CycleRunner, interval, startDelay time.Duration) *PaymentWatcher {
	return &PaymentWatcher{
		runner:     runner,
		interval:   interval,
		startDelay: startDelay,
	}
}

// Watch runs cycles until ctx is done. A failing or panicking cycle never stops the loop.
func (pw *PaymentWatcher) Watch(ctx context.Context) {
	logger.Log.Info("payment watcher started",
		zap.Duration("interval", pw.interval),
		zap.Duration("start_delay", pw.startDelay))

	if pw.startDelay > 0 {
		delay := time.NewTimer(pw.startDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			logger.Log.Debug("payment watcher is done")
			return
		case <-delay.C:
		}
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		pw.runCycle(ctx)

		select {
		case <-ctx.Done():
			logger.Log.Debug("payment watcher is done")
			return
		case <-ticker.C:
		}
	}
}

func (pw *PaymentWatcher) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("reconciliation cycle panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	start := time.Now()
	if err := pw.runner.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Log.Error("reconciliation cycle failed", zap.Error(err))
		return
	}
	logger.Log.Debug("reconciliation cycle done", zap.Duration("took", time.Since(start)))
}
