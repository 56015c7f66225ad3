// Package config holds the engine's policy constants. Everything here is a
// tunable read from the environment with a documented default; fixed protocol
// constants (the 9:1 carat ratio) live in the model package instead.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config carries every policy knob consumed by the engine components.
type Config struct {
	// TransferFeeRate is charged on every transfer and credited to the
	// treasury (0.01 = 1%).
	TransferFeeRate decimal.Decimal
	// ExchangeFeeRate is charged on currency exchange, in carat-equivalent.
	ExchangeFeeRate decimal.Decimal

	// TargetBookValue is the policy target for reserve per circulating carat.
	TargetBookValue decimal.Decimal
	// MintTolerance is the book-value deviation band inside which mint_check
	// recommends holding.
	MintTolerance decimal.Decimal
	// ConfidenceHigh and ConfidenceMedium band |deviation| into the
	// high/medium/low confidence labels.
	ConfidenceHigh   decimal.Decimal
	ConfidenceMedium decimal.Decimal
	// DiamondsPerBook is the reserve value of one ATM book.
	DiamondsPerBook decimal.Decimal

	// ReserveRatioCritical and ReserveRatioWarn classify circulation status:
	// reserve / (circulation × target) below critical → "critical", below
	// warn → "low".
	ReserveRatioCritical decimal.Decimal
	ReserveRatioWarn     decimal.Decimal

	// TickInterval is the market sampling period.
	TickInterval time.Duration
	// AverageWindow and AverageLag shape the delayed moving average: the
	// average of AverageWindow samples ending AverageLag samples ago.
	AverageWindow int
	AverageLag    int
	// MomentumWeight and VolumeScale shape the raw index: net verified trade
	// flow is squashed to (-1, 1) by flow/(scale+|flow|) and scaled by the
	// weight.
	MomentumWeight decimal.Decimal
	VolumeScale    decimal.Decimal

	// ReputationVolumeThreshold caps the volume component of the reputation
	// score: volume at or above this threshold earns the full 30 points.
	ReputationVolumeThreshold decimal.Decimal

	// Infrastructure.
	Port        string
	DatabaseURL string
	RedisURL    string
}

// Load reads configuration from the environment, applying defaults for every
// unset policy knob.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envStr("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	var err error
	load := func(dst *decimal.Decimal, key, def string) {
		if err != nil {
			return
		}
		*dst, err = envDecimal(key, def)
	}

	load(&cfg.TransferFeeRate, "TRANSFER_FEE_RATE", "0.01")
	load(&cfg.ExchangeFeeRate, "EXCHANGE_FEE_RATE", "0.02")
	load(&cfg.TargetBookValue, "TARGET_BOOK_VALUE", "1.0")
	load(&cfg.MintTolerance, "MINT_TOLERANCE", "0.05")
	load(&cfg.ConfidenceHigh, "MINT_CONFIDENCE_HIGH", "0.10")
	load(&cfg.ConfidenceMedium, "MINT_CONFIDENCE_MEDIUM", "0.05")
	load(&cfg.DiamondsPerBook, "DIAMONDS_PER_BOOK", "90")
	load(&cfg.ReserveRatioCritical, "RESERVE_RATIO_CRITICAL", "0.5")
	load(&cfg.ReserveRatioWarn, "RESERVE_RATIO_WARN", "0.8")
	load(&cfg.MomentumWeight, "MARKET_MOMENTUM_WEIGHT", "0.05")
	load(&cfg.VolumeScale, "MARKET_VOLUME_SCALE", "500")
	load(&cfg.ReputationVolumeThreshold, "REPUTATION_VOLUME_THRESHOLD", "1000")
	if err != nil {
		return nil, err
	}

	if cfg.TickInterval, err = envDuration("MARKET_TICK_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.AverageWindow, err = envInt("MARKET_AVERAGE_WINDOW", 12); err != nil {
		return nil, err
	}
	if cfg.AverageLag, err = envInt("MARKET_AVERAGE_LAG", 2); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Default returns the built-in policy constants without touching the
// environment. Used by tests.
func Default() *Config {
	cfg := &Config{
		TransferFeeRate:           decimal.RequireFromString("0.01"),
		ExchangeFeeRate:           decimal.RequireFromString("0.02"),
		TargetBookValue:           decimal.RequireFromString("1.0"),
		MintTolerance:             decimal.RequireFromString("0.05"),
		ConfidenceHigh:            decimal.RequireFromString("0.10"),
		ConfidenceMedium:          decimal.RequireFromString("0.05"),
		DiamondsPerBook:           decimal.NewFromInt(90),
		ReserveRatioCritical:      decimal.RequireFromString("0.5"),
		ReserveRatioWarn:          decimal.RequireFromString("0.8"),
		TickInterval:              5 * time.Minute,
		AverageWindow:             12,
		AverageLag:                2,
		MomentumWeight:            decimal.RequireFromString("0.05"),
		VolumeScale:               decimal.NewFromInt(500),
		ReputationVolumeThreshold: decimal.NewFromInt(1000),
		Port:                      "8080",
	}
	return cfg
}

// Validate rejects configurations that would break engine invariants.
func (c *Config) Validate() error {
	if c.TransferFeeRate.IsNegative() || c.TransferFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: TRANSFER_FEE_RATE must be in [0, 1), got %s", c.TransferFeeRate)
	}
	if c.ExchangeFeeRate.IsNegative() || c.ExchangeFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: EXCHANGE_FEE_RATE must be in [0, 1), got %s", c.ExchangeFeeRate)
	}
	if c.TargetBookValue.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("config: TARGET_BOOK_VALUE must be positive, got %s", c.TargetBookValue)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: MARKET_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.AverageWindow < 1 || c.AverageLag < 0 {
		return fmt.Errorf("config: invalid average window/lag %d/%d", c.AverageWindow, c.AverageLag)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDecimal(key, def string) (decimal.Decimal, error) {
	v := envStr(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envDuration(key, def string) (time.Duration, error) {
	v := envStr(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
