package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
)

var oneHundred = decimal.NewFromInt(100)

// Deposit records a physical diamond deposit and issues newly minted carats
// to the recipient. Banker or above.
func (s *Service) Deposit(ctx context.Context, bankerID, recipientID string, diamonds, carats decimal.Decimal, memo string) model.Result {
	if diamonds.IsNegative() || carats.IsNegative() {
		return model.Fail(model.ErrValidation, "amounts must not be negative")
	}
	if diamonds.IsZero() && carats.IsZero() {
		return model.Fail(model.ErrValidation, "nothing to deposit")
	}

	unlock := s.lockAccounts(bankerID, recipientID)
	defer unlock()

	if _, err := s.requireRole(ctx, bankerID, role.Banker); err != nil {
		return model.Fail(err, "banker role required")
	}
	recipient, err := s.getAccount(ctx, recipientID)
	if err != nil {
		return model.Fail(err, "recipient is not registered")
	}

	recipient.Carats = recipient.Carats.Add(carats)
	if err := s.store.UpdateAccount(ctx, recipient); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "deposit failed")
	}

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "deposit failed")
	}
	t.Reserve = t.Reserve.Add(diamonds)
	t.TotalCaratsMinted = t.TotalCaratsMinted.Add(carats)
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTreasury(ctx, t); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "deposit failed")
	}
	if err := s.appendTreasuryEvent(ctx, model.EventDeposit, diamonds, carats, model.Carat, bankerID, memo); err != nil {
		slog.Error("deposit: event append failed", "err", err)
	}

	return model.OK("deposit complete", map[string]any{
		"diamonds_deposited": diamonds,
		"carats_issued":      carats,
		"recipient":          recipientID,
		"new_book_value":     t.BookValue(s.cfg.TargetBookValue),
	})
}

// RecordATMProfit adds ATM book revenue to the reserve. One book is worth a
// configured number of diamonds (90 by default). Supply is unchanged, so the
// book value strengthens. Banker or above.
func (s *Service) RecordATMProfit(ctx context.Context, bankerID string, books int64, memo string) model.Result {
	if books <= 0 {
		return model.Fail(model.ErrValidation, "book count must be positive")
	}

	if _, err := s.requireRole(ctx, bankerID, role.Banker); err != nil {
		return model.Fail(err, "banker role required")
	}

	diamonds := decimal.NewFromInt(books).Mul(s.cfg.DiamondsPerBook)

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "recording failed")
	}
	t.Reserve = t.Reserve.Add(diamonds)
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTreasury(ctx, t); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "recording failed")
	}
	if err := s.appendTreasuryEvent(ctx, model.EventATMProfit, diamonds, decimal.Zero, "", bankerID, memo); err != nil {
		slog.Error("atm profit: event append failed", "err", err)
	}

	return model.OK("ATM profit recorded", map[string]any{
		"books":          books,
		"diamonds":       diamonds,
		"new_book_value": t.BookValue(s.cfg.TargetBookValue),
	})
}

// Mint issues new supply into the treasury vault, diluting book value. The
// minted currency is not credited to any user account; distribution happens
// through subsequent deposits or transfers. Head banker only.
func (s *Service) Mint(ctx context.Context, headBankerID string, amount decimal.Decimal, currency model.Currency, memo string) model.Result {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.Fail(model.ErrValidation, "amount must be positive")
	}
	if !currency.Valid() {
		return model.Fail(model.ErrValidation, fmt.Sprintf("unknown currency %q", currency))
	}
	if _, err := s.requireRole(ctx, headBankerID, role.HeadBanker); err != nil {
		return model.Fail(err, "head banker role required")
	}

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "mint failed")
	}
	if currency == model.GoldenCarat {
		t.TotalGoldenCaratsMinted = t.TotalGoldenCaratsMinted.Add(amount)
		t.VaultGoldenCarats = t.VaultGoldenCarats.Add(amount)
	} else {
		t.TotalCaratsMinted = t.TotalCaratsMinted.Add(amount)
		t.VaultCarats = t.VaultCarats.Add(amount)
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTreasury(ctx, t); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "mint failed")
	}
	if err := s.appendTreasuryEvent(ctx, model.EventMint, decimal.Zero, caratEquivalent(amount, currency), currency, headBankerID, memo); err != nil {
		slog.Error("mint: event append failed", "err", err)
	}

	return model.OK("currency minted", map[string]any{
		"amount":         amount,
		"currency":       currency,
		"new_book_value": t.BookValue(s.cfg.TargetBookValue),
	})
}

// Burn destroys supply held in the treasury vault. Burning never touches a
// user account; if the vault holds less than the requested amount the burn
// fails with InsufficientBalance. Head banker only.
func (s *Service) Burn(ctx context.Context, headBankerID string, amount decimal.Decimal, currency model.Currency, memo string) model.Result {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.Fail(model.ErrValidation, "amount must be positive")
	}
	if !currency.Valid() {
		return model.Fail(model.ErrValidation, fmt.Sprintf("unknown currency %q", currency))
	}
	if _, err := s.requireRole(ctx, headBankerID, role.HeadBanker); err != nil {
		return model.Fail(err, "head banker role required")
	}

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "burn failed")
	}

	vault := t.VaultCarats
	if currency == model.GoldenCarat {
		vault = t.VaultGoldenCarats
	}
	if vault.LessThan(amount) {
		return model.Fail(model.ErrInsufficientBalance,
			fmt.Sprintf("treasury vault holds %s %s, cannot burn %s", vault, currency, amount))
	}

	if currency == model.GoldenCarat {
		t.TotalGoldenCaratsMinted = t.TotalGoldenCaratsMinted.Sub(amount)
		t.VaultGoldenCarats = t.VaultGoldenCarats.Sub(amount)
	} else {
		t.TotalCaratsMinted = t.TotalCaratsMinted.Sub(amount)
		t.VaultCarats = t.VaultCarats.Sub(amount)
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTreasury(ctx, t); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "burn failed")
	}
	if err := s.appendTreasuryEvent(ctx, model.EventBurn, decimal.Zero, caratEquivalent(amount, currency).Neg(), currency, headBankerID, memo); err != nil {
		slog.Error("burn: event append failed", "err", err)
	}

	return model.OK("currency burned", map[string]any{
		"amount":         amount,
		"currency":       currency,
		"new_book_value": t.BookValue(s.cfg.TargetBookValue),
	})
}

// TreasuryStatus returns a consistent snapshot of the treasury counters.
func (s *Service) TreasuryStatus(ctx context.Context) model.Result {
	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "treasury unavailable")
	}

	circulation := t.Circulation()
	required := circulation.Mul(s.cfg.TargetBookValue)

	ratio := oneHundred
	if required.IsPositive() {
		ratio = t.Reserve.Div(required).Mul(oneHundred)
	}
	backing := t.Reserve
	if backing.GreaterThan(required) && required.IsPositive() {
		backing = required
	}

	return model.OK("treasury status", map[string]any{
		"total_diamonds":             t.Reserve,
		"reserve_diamonds":           backing,
		"reserve_ratio":              ratio,
		"total_carats_minted":        t.TotalCaratsMinted,
		"total_golden_carats_minted": t.TotalGoldenCaratsMinted,
		"book_value":                 t.BookValue(s.cfg.TargetBookValue),
		"total_circulation":          circulation,
		"accumulated_fees":           t.AccumulatedFees,
		"last_updated":               t.UpdatedAt,
	})
}

// TreasuryHistory summarizes treasury events over the trailing day window.
func (s *Service) TreasuryHistory(ctx context.Context, days int) model.Result {
	if days <= 0 {
		days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	events, err := s.store.TreasuryEventsSince(ctx, since)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "history unavailable")
	}

	var inDiamonds, outDiamonds, inCarats, outCarats, totalFees decimal.Decimal
	for _, e := range events {
		if e.ReserveDelta.IsPositive() {
			inDiamonds = inDiamonds.Add(e.ReserveDelta)
		} else {
			outDiamonds = outDiamonds.Add(e.ReserveDelta.Neg())
		}
		if e.CaratDelta.IsPositive() {
			inCarats = inCarats.Add(e.CaratDelta)
		} else {
			outCarats = outCarats.Add(e.CaratDelta.Neg())
		}
		if e.Kind == model.EventFee {
			totalFees = totalFees.Add(e.CaratDelta)
		}
	}

	return model.OK("treasury history", map[string]any{
		"days":   days,
		"events": events,
		"summary": map[string]any{
			"inflow_diamonds":   inDiamonds,
			"outflow_diamonds":  outDiamonds,
			"net_diamonds":      inDiamonds.Sub(outDiamonds),
			"inflow_carats":     inCarats,
			"outflow_carats":    outCarats,
			"net_carats":        inCarats.Sub(outCarats),
			"total_fees":        totalFees,
			"transaction_count": len(events),
		},
	})
}
