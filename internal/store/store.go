// Package store defines the persistence interface for the bank engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arcabank/bank-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. Callers serialize multi-step mutations
// themselves; a Store only guarantees that each individual call is atomic.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account. ErrAlreadyExists if the ID is taken.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by its opaque external ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// UpdateAccount overwrites an existing account record.
	UpdateAccount(ctx context.Context, a *model.Account) error

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Treasury ---

	// GetTreasury returns the treasury counters snapshot.
	GetTreasury(ctx context.Context) (*model.TreasuryState, error)

	// UpdateTreasury overwrites the treasury counters.
	UpdateTreasury(ctx context.Context, t *model.TreasuryState) error

	// AppendTreasuryEvent appends an immutable treasury history record.
	AppendTreasuryEvent(ctx context.Context, e *model.TreasuryEvent) error

	// TreasuryEventsSince returns history entries at or after since, oldest first.
	TreasuryEventsSince(ctx context.Context, since time.Time) ([]model.TreasuryEvent, error)

	// --- Trades ---

	// InsertTrade stores a trade and returns its assigned monotonic ID.
	InsertTrade(ctx context.Context, t *model.Trade) (int64, error)

	// GetTrade retrieves a trade by ID.
	GetTrade(ctx context.Context, id int64) (*model.Trade, error)

	// UpdateTrade overwrites a trade record (verification only).
	UpdateTrade(ctx context.Context, t *model.Trade) error

	// TradesByReporter returns a reporter's trades, newest first.
	// limit <= 0 means no limit.
	TradesByReporter(ctx context.Context, reporter string, limit int) ([]model.Trade, error)

	// TradesSince returns trades at or after since, in ID order.
	TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error)

	// ListTrades returns all trades in ID order.
	ListTrades(ctx context.Context) ([]model.Trade, error)

	// --- Time series ---

	// AppendMarketSample appends one market index sample.
	AppendMarketSample(ctx context.Context, s model.MarketSample) error

	// MarketSamplesSince returns samples at or after since, oldest first.
	MarketSamplesSince(ctx context.Context, since time.Time) ([]model.MarketSample, error)

	// LastMarketSamples returns the newest n samples, oldest first.
	LastMarketSamples(ctx context.Context, n int) ([]model.MarketSample, error)

	// MarketSampleBefore returns the newest sample at or before at.
	// ErrNotFound if no sample is that old.
	MarketSampleBefore(ctx context.Context, at time.Time) (*model.MarketSample, error)

	// AppendTreasurySample appends one treasury health sample.
	AppendTreasurySample(ctx context.Context, s model.TreasurySample) error

	// TreasurySamplesSince returns samples at or after since, oldest first.
	TreasurySamplesSince(ctx context.Context, since time.Time) ([]model.TreasurySample, error)
}
