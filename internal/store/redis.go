package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcabank/bank-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: account balances and the treasury snapshot.
// Writes go to the primary store and invalidate the cache; reads check Redis
// first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.UpdateAccount(ctx, a); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, accountKey(a.ID))
	return nil
}

func (s *CachedStore) UpdateTreasury(ctx context.Context, t *model.TreasuryState) error {
	if err := s.primary.UpdateTreasury(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, treasuryKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) GetTreasury(ctx context.Context) (*model.TreasuryState, error) {
	data, err := s.rdb.Get(ctx, treasuryKey).Bytes()
	if err == nil {
		var t model.TreasuryState
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetTreasury(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, treasuryKey, data, s.ttl)
	}
	return t, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) AppendTreasuryEvent(ctx context.Context, e *model.TreasuryEvent) error {
	return s.primary.AppendTreasuryEvent(ctx, e)
}

func (s *CachedStore) TreasuryEventsSince(ctx context.Context, since time.Time) ([]model.TreasuryEvent, error) {
	return s.primary.TreasuryEventsSince(ctx, since)
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) (int64, error) {
	return s.primary.InsertTrade(ctx, t)
}

func (s *CachedStore) GetTrade(ctx context.Context, id int64) (*model.Trade, error) {
	return s.primary.GetTrade(ctx, id)
}

func (s *CachedStore) UpdateTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.UpdateTrade(ctx, t)
}

func (s *CachedStore) TradesByReporter(ctx context.Context, reporter string, limit int) ([]model.Trade, error) {
	return s.primary.TradesByReporter(ctx, reporter, limit)
}

func (s *CachedStore) TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	return s.primary.TradesSince(ctx, since)
}

func (s *CachedStore) ListTrades(ctx context.Context) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx)
}

func (s *CachedStore) AppendMarketSample(ctx context.Context, sample model.MarketSample) error {
	return s.primary.AppendMarketSample(ctx, sample)
}

func (s *CachedStore) MarketSamplesSince(ctx context.Context, since time.Time) ([]model.MarketSample, error) {
	return s.primary.MarketSamplesSince(ctx, since)
}

func (s *CachedStore) LastMarketSamples(ctx context.Context, n int) ([]model.MarketSample, error) {
	return s.primary.LastMarketSamples(ctx, n)
}

func (s *CachedStore) MarketSampleBefore(ctx context.Context, at time.Time) (*model.MarketSample, error) {
	return s.primary.MarketSampleBefore(ctx, at)
}

func (s *CachedStore) AppendTreasurySample(ctx context.Context, sample model.TreasurySample) error {
	return s.primary.AppendTreasurySample(ctx, sample)
}

func (s *CachedStore) TreasurySamplesSince(ctx context.Context, since time.Time) ([]model.TreasurySample, error) {
	return s.primary.TreasurySamplesSince(ctx, since)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

const treasuryKey = "treasury:state"

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
