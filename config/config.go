package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultServerAddress   = ":8080"
	defaultDatabaseDSN     = ""
	defaultLogLevel        = "info"
	defaultConfBTC         = 3
	defaultConfETH         = 12
	defaultConfUSDT        = 20
	defaultFeeBuffer       = "0"
	defaultTolerance       = "0.001"
	defaultPollInterval    = 30 * time.Second
	defaultStartDelay      = 5 * time.Second
	defaultProviderTimeout = 20 * time.Second
	defaultConcurrency     = 4
	defaultRatesCacheTTL   = 60 * time.Second
	defaultFiatCurrency    = "eur"
	defaultSettlementTopic = "order.settlements"

	defaultBTCAPIURL       = "https://api.blockcypher.com/v1/btc/main"
	defaultETHAPIURL       = "https://api.etherscan.io/api"
	defaultTronAPIURL      = "https://api.trongrid.io"
	defaultTronFallbackURL = "https://apilist.tronscanapi.com/api"
	defaultRatesURL        = "https://api.coingecko.com/api/v3/simple/price"
	defaultUSDTContract    = "TR7NHqjeKQxGTCi8q8ZMAXaHuQDXX9TVoT"
)

// AssetConfig is per-asset reconciliation settings
type AssetConfig struct {
	Address       string
	Confirmations int64
}

type Config struct {
	ServerAddr   string
	DatabaseDSN  string
	LogLevel     string
	Assets       map[models.Asset]AssetConfig
	FeeBuffer    decimal.Decimal
	Tolerance    decimal.Decimal
	PollInterval time.Duration
	StartDelay   time.Duration
	Concurrency  int

	ProviderTimeout time.Duration
	EtherscanAPIKey string
	TronGridAPIKey  string
	BTCAPIURL       string
	ETHAPIURL       string
	TronAPIURL      string
	TronFallbackURL string
	USDTContract    string

	RatesURL      string
	FiatCurrency  string
	RedisAddr     string
	RatesCacheTTL time.Duration

	KafkaBrokers    []string
	SettlementTopic string

	AuthTokenKey []byte
}

var (
	once      sync.Once
	singleton *Config
	loadErr   error
)

// New returns new Config. It parses command line and environment variables only once.
func New() (*Config, error) {
	once.Do(func() {
		singleton, loadErr = parse(flag.CommandLine, os.Args[1:], os.Getenv)
	})

	return singleton, loadErr
}

// Enabled reports whether asset has receiving address configured
func (c *Config) Enabled(asset models.Asset) bool {
	ac, ok := c.Assets[asset]
	return ok && ac.Address != ""
}

func parse(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	cfg := Config{}

	var (
		btcAddr, ethAddr, usdtAddr string
		confBTC, confETH, confUSDT int64
		feeBuffer, tolerance       string
	)

	// initialize flags
	fs.StringVar(&cfg.ServerAddr, "a", defaultServerAddress, "api server address")
	fs.StringVar(&cfg.DatabaseDSN, "d", defaultDatabaseDSN, "database DSN")
	fs.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
	fs.StringVar(&btcAddr, "btc-address", "", "BTC receiving address")
	fs.StringVar(&ethAddr, "eth-address", "", "ETH receiving address")
	fs.StringVar(&usdtAddr, "usdt-address", "", "USDT (TRC20) receiving address")
	fs.Int64Var(&confBTC, "conf-btc", defaultConfBTC, "minimum BTC confirmations")
	fs.Int64Var(&confETH, "conf-eth", defaultConfETH, "minimum ETH confirmations")
	fs.Int64Var(&confUSDT, "conf-usdt", defaultConfUSDT, "minimum USDT confirmations")
	fs.StringVar(&feeBuffer, "fee-buffer", defaultFeeBuffer, "fee buffer fraction added to required amount")
	fs.StringVar(&tolerance, "tolerance", defaultTolerance, "allowed underpayment fraction")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "reconciliation interval")
	fs.DurationVar(&cfg.StartDelay, "start-delay", defaultStartDelay, "delay before first reconciliation")
	fs.DurationVar(&cfg.ProviderTimeout, "http-timeout", defaultProviderTimeout, "blockchain provider request timeout")
	fs.IntVar(&cfg.Concurrency, "concurrency", defaultConcurrency, "number of pairs reconciled in parallel")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// if environment variable is set, then using it
	envString(getenv, "RUN_ADDRESS", &cfg.ServerAddr)
	envString(getenv, "DATABASE_URI", &cfg.DatabaseDSN)
	envString(getenv, "LOG_LEVEL", &cfg.LogLevel)
	envString(getenv, "BTC_ADDRESS", &btcAddr)
	envString(getenv, "ETH_ADDRESS", &ethAddr)
	envString(getenv, "USDT_ADDRESS", &usdtAddr)
	envString(getenv, "FEE_BUFFER", &feeBuffer)
	envString(getenv, "MATCH_TOLERANCE", &tolerance)

	var errs []error
	errs = append(errs,
		envInt(getenv, "CONF_BTC", &confBTC),
		envInt(getenv, "CONF_ETH", &confETH),
		envInt(getenv, "CONF_USDT", &confUSDT),
		envDuration(getenv, "POLL_INTERVAL", &cfg.PollInterval),
		envDuration(getenv, "START_DELAY", &cfg.StartDelay),
		envDuration(getenv, "PROVIDER_TIMEOUT", &cfg.ProviderTimeout),
		envDuration(getenv, "RATES_CACHE_TTL", &cfg.RatesCacheTTL),
	)
	if v := getenv("RECONCILE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECONCILE_CONCURRENCY: %w", err))
		}
		cfg.Concurrency = n
	}

	cfg.Assets = map[models.Asset]AssetConfig{
		models.AssetBTC:  {Address: strings.TrimSpace(btcAddr), Confirmations: confBTC},
		models.AssetETH:  {Address: strings.TrimSpace(ethAddr), Confirmations: confETH},
		models.AssetUSDT: {Address: strings.TrimSpace(usdtAddr), Confirmations: confUSDT},
	}

	cfg.EtherscanAPIKey = getenv("ETHERSCAN_API_KEY")
	cfg.TronGridAPIKey = getenv("TRONGRID_API_KEY")
	cfg.BTCAPIURL = envOr(getenv, "BTC_API_URL", defaultBTCAPIURL)
	cfg.ETHAPIURL = envOr(getenv, "ETH_API_URL", defaultETHAPIURL)
	cfg.TronAPIURL = envOr(getenv, "TRON_API_URL", defaultTronAPIURL)
	cfg.TronFallbackURL = envOr(getenv, "TRON_FALLBACK_URL", defaultTronFallbackURL)
	cfg.USDTContract = envOr(getenv, "USDT_CONTRACT", defaultUSDTContract)
	cfg.RatesURL = envOr(getenv, "RATES_URL", defaultRatesURL)
	cfg.FiatCurrency = strings.ToLower(envOr(getenv, "FIAT_CURRENCY", defaultFiatCurrency))
	cfg.RedisAddr = getenv("REDIS_ADDR")
	if cfg.RatesCacheTTL == 0 {
		cfg.RatesCacheTTL = defaultRatesCacheTTL
	}
	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.SettlementTopic = envOr(getenv, "KAFKA_SETTLEMENT_TOPIC", defaultSettlementTopic)

	if key := getenv("AUTH_TOKEN_KEY"); key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("AUTH_TOKEN_KEY: %w", err))
		}
		cfg.AuthTokenKey = raw
	}

	var err error
	if cfg.FeeBuffer, err = decimal.NewFromString(feeBuffer); err != nil {
		errs = append(errs, fmt.Errorf("fee buffer: %w", err))
	}
	if cfg.Tolerance, err = decimal.NewFromString(tolerance); err != nil {
		errs = append(errs, fmt.Errorf("tolerance: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings required for correct reconciliation
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}

	enabled := 0
	for _, asset := range models.Assets {
		ac := c.Assets[asset]
		if ac.Address != "" {
			enabled++
		}
		if ac.Confirmations < 0 {
			errs = append(errs, fmt.Errorf("%s confirmations must not be negative", asset))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("no receiving address configured for any asset"))
	}

	if c.Tolerance.IsNegative() || c.Tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("tolerance must be in [0, 1)"))
	}
	if c.FeeBuffer.IsNegative() {
		errs = append(errs, errors.New("fee buffer must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("provider timeout must be positive"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if len(c.AuthTokenKey) == 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_KEY is required"))
	}

	return errors.Join(errs...)
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, dst *int64) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(getenv func(string) string, key string, dst *time.Duration) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
