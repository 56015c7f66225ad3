// Package bank implements the account ledger, transfer engine, treasury and
// mint-policy operations of the Arca Bank engine.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every operation returns a model.Result; typed failures never escape as
// panics or bare errors.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/config"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

// Service executes the mutating bank operations against a Store.
//
// Locking discipline: per-account mutexes are acquired in ascending account-ID
// order so a transfer touching two accounts can never deadlock against the
// reverse transfer. Treasury counters are guarded by a single treasury-wide
// mutex so book value is always read as a consistent snapshot. Account locks
// are always taken before the treasury lock, never after.
type Service struct {
	store store.Store
	cfg   *config.Config

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex

	treasuryMu sync.Mutex
}

// NewService creates a bank service over the given store.
func NewService(st store.Store, cfg *config.Config) *Service {
	return &Service{
		store: st,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying store for read-only collaborators
// (market engine, trade registry).
func (s *Service) Store() store.Store {
	return s.store
}

// accountLock returns the mutex for one account, creating it on first use.
// Lock entries live for the process lifetime; accounts are never deleted.
func (s *Service) accountLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// lockAccounts locks the given accounts in ascending ID order and returns the
// matching unlock function.
func (s *Service) lockAccounts(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		l := s.accountLock(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// getAccount loads an account, mapping store misses to the engine taxonomy.
func (s *Service) getAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s is not registered", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	return a, nil
}

// requireRole resolves the caller identity and checks its privilege. The
// engine never trusts a caller-supplied role; only the ledger record counts.
func (s *Service) requireRole(ctx context.Context, actorID string, min role.Role) (*model.Account, error) {
	actor, err := s.getAccount(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.AtLeast(min) {
		return nil, fmt.Errorf("%w: %s requires %s", model.ErrAuthorization, actorID, min)
	}
	return actor, nil
}

// appendTreasuryEvent records one immutable history entry. Failures here are
// reported but do not unwind the already-applied mutation; the counters are
// the source of truth, the history is the audit trail.
func (s *Service) appendTreasuryEvent(ctx context.Context, kind model.TreasuryEventKind,
	reserveDelta, caratDelta decimal.Decimal, currency model.Currency, actor, memo string) error {

	return s.store.AppendTreasuryEvent(ctx, &model.TreasuryEvent{
		ID:           uuid.New().String(),
		Kind:         kind,
		ReserveDelta: reserveDelta,
		CaratDelta:   caratDelta,
		Currency:     currency,
		Actor:        actor,
		Memo:         memo,
		Timestamp:    time.Now().UTC(),
	})
}

// caratEquivalent converts an amount in the given currency to carats.
func caratEquivalent(amount decimal.Decimal, c model.Currency) decimal.Decimal {
	if c == model.GoldenCarat {
		return amount.Mul(model.CaratsPerGoldenCarat)
	}
	return amount
}
