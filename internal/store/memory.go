package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcabank/bank-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// single-node deployments without a database. State lives for the process
// lifetime; there is no persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*model.Account
	treasury    model.TreasuryState
	events      []model.TreasuryEvent
	trades      []model.Trade
	nextTradeID int64
	market      []model.MarketSample
	reserves    []model.TreasurySample
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*model.Account),
		nextTradeID: 1,
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %s", ErrAlreadyExists, a.ID)
	}
	// Store a copy to avoid external mutation.
	copy := *a
	s.accounts[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, a.ID)
	}
	copy := *a
	s.accounts[a.ID] = &copy
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func (s *MemoryStore) GetTreasury(_ context.Context) (*model.TreasuryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.treasury
	return &t, nil
}

func (s *MemoryStore) UpdateTreasury(_ context.Context, t *model.TreasuryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.treasury = *t
	return nil
}

func (s *MemoryStore) AppendTreasuryEvent(_ context.Context, e *model.TreasuryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) TreasuryEventsSince(_ context.Context, since time.Time) ([]model.TreasuryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TreasuryEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextTradeID
	s.nextTradeID++
	s.trades = append(s.trades, *t)
	return t.ID, nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id int64) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.trades {
		if s.trades[i].ID == id {
			copy := s.trades[i]
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("%w: trade %d", ErrNotFound, id)
}

func (s *MemoryStore) UpdateTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.trades {
		if s.trades[i].ID == t.ID {
			s.trades[i] = *t
			return nil
		}
	}
	return fmt.Errorf("%w: trade %d", ErrNotFound, t.ID)
}

func (s *MemoryStore) TradesByReporter(_ context.Context, reporter string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	// Trades are stored in ID order; walk backwards for newest first.
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].Reporter != reporter {
			continue
		}
		result = append(result, s.trades[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) TradesSince(_ context.Context, since time.Time) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if !t.Timestamp.Before(since) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTrades(_ context.Context) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Trade, len(s.trades))
	copy(result, s.trades)
	return result, nil
}

func (s *MemoryStore) AppendMarketSample(_ context.Context, sample model.MarketSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.market = append(s.market, sample)
	return nil
}

func (s *MemoryStore) MarketSamplesSince(_ context.Context, since time.Time) ([]model.MarketSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.MarketSample
	for _, m := range s.market {
		if !m.Timestamp.Before(since) {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *MemoryStore) LastMarketSamples(_ context.Context, n int) ([]model.MarketSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.market) == 0 {
		return nil, nil
	}
	start := len(s.market) - n
	if start < 0 {
		start = 0
	}
	result := make([]model.MarketSample, len(s.market)-start)
	copy(result, s.market[start:])
	return result, nil
}

func (s *MemoryStore) MarketSampleBefore(_ context.Context, at time.Time) (*model.MarketSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Samples are stored in time order; walk backwards for the newest match.
	for i := len(s.market) - 1; i >= 0; i-- {
		if !s.market[i].Timestamp.After(at) {
			copy := s.market[i]
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("%w: no market sample at or before %s", ErrNotFound, at.Format(time.RFC3339))
}

func (s *MemoryStore) AppendTreasurySample(_ context.Context, sample model.TreasurySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reserves = append(s.reserves, sample)
	return nil
}

func (s *MemoryStore) TreasurySamplesSince(_ context.Context, since time.Time) ([]model.TreasurySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TreasurySample
	for _, r := range s.reserves {
		if !r.Timestamp.Before(since) {
			result = append(result, r)
		}
	}
	return result, nil
}
