package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/metrics"
	"github.com/arcabank/bank-engine/internal/model"
)

// Transfer moves amount of the given currency from one account to another.
// A configured fee is withheld from the recipient and credited to the
// treasury's accumulated fees in carat-equivalent terms. All-or-nothing: any
// failed precondition leaves both accounts untouched.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, currency model.Currency) model.Result {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.Fail(model.ErrValidation, "amount must be positive")
	}
	if fromID == toID {
		return model.Fail(model.ErrValidation, "cannot transfer to yourself")
	}
	if !currency.Valid() {
		return model.Fail(model.ErrValidation, fmt.Sprintf("unknown currency %q", currency))
	}

	unlock := s.lockAccounts(fromID, toID)
	defer unlock()

	from, err := s.getAccount(ctx, fromID)
	if err != nil {
		return model.Fail(err, "sender is not registered")
	}
	to, err := s.getAccount(ctx, toID)
	if err != nil {
		return model.Fail(err, "recipient is not registered")
	}

	if from.Balance(currency).LessThan(amount) {
		return model.Fail(model.ErrInsufficientBalance,
			fmt.Sprintf("insufficient %s balance: have %s, need %s", currency, from.Balance(currency), amount))
	}

	fee := amount.Mul(s.cfg.TransferFeeRate)
	received := amount.Sub(fee)

	debit(from, currency, amount)
	credit(to, currency, received)

	if err := s.store.UpdateAccount(ctx, from); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "transfer failed")
	}
	if err := s.store.UpdateAccount(ctx, to); err != nil {
		// Restore the sender so no currency disappears.
		credit(from, currency, amount)
		if rerr := s.store.UpdateAccount(ctx, from); rerr != nil {
			slog.Error("transfer compensation failed", "from", fromID, "err", rerr)
		}
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "transfer failed")
	}

	s.creditFees(ctx, caratEquivalent(fee, currency), fromID,
		fmt.Sprintf("transfer fee %s -> %s", fromID, toID))

	return model.OK("transfer complete", map[string]any{
		"amount_sent":     amount,
		"amount_received": received,
		"fee":             fee,
		"currency":        currency,
	})
}

// Exchange converts between carats and golden carats at the fixed 9:1 ratio,
// minus the configured exchange fee taken from the converted amount. A round
// trip never increases the account's carat-equivalent total.
func (s *Service) Exchange(ctx context.Context, id string, amount decimal.Decimal, from, to model.Currency) model.Result {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.Fail(model.ErrValidation, "amount must be positive")
	}
	if !from.Valid() || !to.Valid() {
		return model.Fail(model.ErrValidation, "unknown currency")
	}
	if from == to {
		return model.Fail(model.ErrValidation, "cannot exchange a currency for itself")
	}

	unlock := s.lockAccounts(id)
	defer unlock()

	a, err := s.getAccount(ctx, id)
	if err != nil {
		return model.Fail(err, "you are not registered")
	}
	if a.Balance(from).LessThan(amount) {
		return model.Fail(model.ErrInsufficientBalance,
			fmt.Sprintf("insufficient %s balance: have %s, need %s", from, a.Balance(from), amount))
	}

	var gross decimal.Decimal
	if from == model.Carat {
		gross = amount.Div(model.CaratsPerGoldenCarat)
	} else {
		gross = amount.Mul(model.CaratsPerGoldenCarat)
	}
	fee := gross.Mul(s.cfg.ExchangeFeeRate)
	converted := gross.Sub(fee)

	debit(a, from, amount)
	credit(a, to, converted)

	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "exchange failed")
	}

	s.creditFees(ctx, caratEquivalent(fee, to), id, fmt.Sprintf("exchange fee %s", id))

	return model.OK("exchange complete", map[string]any{
		"from_amount":   amount,
		"from_currency": from,
		"to_amount":     converted,
		"to_currency":   to,
		"fee":           caratEquivalent(fee, to),
	})
}

// creditFees adds a carat-equivalent fee to the treasury under the treasury
// lock and records the fee event.
func (s *Service) creditFees(ctx context.Context, feeCarats decimal.Decimal, actor, memo string) {
	if feeCarats.IsZero() {
		return
	}

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		slog.Error("fee credit: treasury read failed", "err", err)
		return
	}
	t.AccumulatedFees = t.AccumulatedFees.Add(feeCarats)
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTreasury(ctx, t); err != nil {
		slog.Error("fee credit: treasury write failed", "err", err)
		return
	}
	metrics.FeesCollected.Add(feeCarats.InexactFloat64())
	if err := s.appendTreasuryEvent(ctx, model.EventFee, decimal.Zero, feeCarats, model.Carat, actor, memo); err != nil {
		slog.Error("fee credit: event append failed", "err", err)
	}
}

func debit(a *model.Account, c model.Currency, amount decimal.Decimal) {
	if c == model.GoldenCarat {
		a.GoldenCarats = a.GoldenCarats.Sub(amount)
		return
	}
	a.Carats = a.Carats.Sub(amount)
}

func credit(a *model.Account, c model.Currency, amount decimal.Decimal) {
	if c == model.GoldenCarat {
		a.GoldenCarats = a.GoldenCarats.Add(amount)
		return
	}
	a.Carats = a.Carats.Add(amount)
}
