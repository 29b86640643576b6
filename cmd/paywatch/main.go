package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rookgm/paywatch/config"
	"github.com/rookgm/paywatch/internal/chain"
	handler "github.com/rookgm/paywatch/internal/handler/http"
	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/metrics"
	"github.com/rookgm/paywatch/internal/middleware"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/rookgm/paywatch/internal/notify"
	"github.com/rookgm/paywatch/internal/rates"
	"github.com/rookgm/paywatch/internal/repository"
	"github.com/rookgm/paywatch/internal/repository/postgres"
	"github.com/rookgm/paywatch/internal/service"
	"github.com/rookgm/paywatch/internal/worker"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {

	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Log.Sync()

	// create context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// initialize database
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Log.Fatal("Error initializing database", zap.Error(err))
	}
	defer db.Close()

	// migrate database
	if err := db.Migrate(); err != nil {
		logger.Log.Fatal("Error migrating database", zap.Error(err))
	}

	// dependency injection
	orderRepo := repository.NewOrderRepository(db)
	seenRepo := repository.NewSeenRepository(db)

	// pending orders must not wait on an asset without address
	if err := service.CheckAssetsInUse(ctx, orderRepo, cfg.Enabled); err != nil {
		logger.Log.Fatal("Pending orders for disabled asset", zap.Error(err))
	}

	// chain adapters, only for assets having receiving address
	httpClient := chain.NewHTTPClient(cfg.ProviderTimeout)
	var adapters []chain.Adapter
	addresses := map[models.Asset]string{}
	confirmations := map[models.Asset]int64{}
	for _, asset := range models.Assets {
		if !cfg.Enabled(asset) {
			continue
		}
		addresses[asset] = cfg.Assets[asset].Address
		confirmations[asset] = cfg.Assets[asset].Confirmations

		switch asset {
		case models.AssetBTC:
			adapters = append(adapters, chain.NewBTCAdapter(httpClient, cfg.BTCAPIURL))
		case models.AssetETH:
			adapters = append(adapters, chain.NewETHAdapter(httpClient, cfg.ETHAPIURL, cfg.EtherscanAPIKey))
		case models.AssetUSDT:
			adapters = append(adapters, chain.NewTRC20Adapter(httpClient, cfg.TronAPIURL, cfg.TronFallbackURL,
				cfg.TronGridAPIKey, cfg.USDTContract))
		}
		logger.Log.Info("Asset enabled",
			zap.String("asset", asset.String()),
			zap.String("address", cfg.Assets[asset].Address),
			zap.Int64("confirmations", cfg.Assets[asset].Confirmations))
	}

	// rates
	var rateSource rates.Source = rates.NewCoinGecko(httpClient, cfg.RatesURL, cfg.FiatCurrency)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rateSource = rates.NewCachedSource(rateSource, rdb, cfg.FiatCurrency, cfg.RatesCacheTTL)
	}

	// notifications
	sinks := notify.MultiSink{notify.LogSink{}}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Log.Fatal("Error creating kafka producer", zap.Error(err))
		}
		kafkaSink := notify.NewKafkaSink(producer, cfg.SettlementTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	// metrics
	registry := metrics.NewRegistry()
	reconcileMetrics := metrics.NewReconciler(registry)

	// reconciliation
	reconcileService := service.NewReconcileService(orderRepo, seenRepo, sinks, adapters, service.ReconcileConfig{
		Confirmations: confirmations,
		Tolerance:     cfg.Tolerance,
		Concurrency:   cfg.Concurrency,
	}, reconcileMetrics)
	watcher := worker.NewPaymentWatcher(reconcileService, cfg.PollInterval, cfg.StartDelay)

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watcher.Watch(ctx)
	}()

	// order
	orderService := service.NewOrderService(orderRepo, rateSource, sinks, addresses, cfg.FeeBuffer)
	orderHandler := handler.NewOrderHandler(orderService)

	// auth
	tokenService := service.NewTokenService(cfg.AuthTokenKey, 0)

	router := chi.NewRouter()

	router.Use(middleware.Logging(logger.Log))

	router.Get("/healthz", handler.Health(db))
	router.Handle("/metrics", metrics.Handler(registry))

	// routes that require authentication
	router.Group(func(group chi.Router) {
		group.Use(middleware.Auth(tokenService))
		group.Post("/api/orders", orderHandler.CreateOrder())
		group.Get("/api/orders/{code}", orderHandler.GetOrder())
		group.Post("/api/orders/{code}/asset", orderHandler.SelectAsset())
	})

	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Error shutting down server", zap.Error(err))
		}
	}()

	logger.Log.Info("Running server", zap.String("addr", cfg.ServerAddr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("Error starting server", zap.Error(err))
	}

	<-watcherDone
	logger.Log.Info("Stopped")
}
