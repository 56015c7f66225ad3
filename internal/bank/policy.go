package bank

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
)

// MintCheck evaluates the supply policy and recommends a mint, burn, or hold.
// The check is advisory: it never changes treasury state. Pending ATM book
// revenue is projected into the reserve before comparing book value against
// the target, so a large un-redeemed book pile counts toward backing.
// Head banker only.
func (s *Service) MintCheck(ctx context.Context, bankerID string, pendingBooks int64) model.Result {
	if pendingBooks < 0 {
		return model.Fail(model.ErrValidation, "pending book count must not be negative")
	}
	if _, err := s.requireRole(ctx, bankerID, role.HeadBanker); err != nil {
		return model.Fail(err, "head banker role required")
	}

	t, err := s.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "treasury unavailable")
	}

	rec := evaluatePolicy(t, pendingBooks, s.cfg.TargetBookValue, s.cfg.DiamondsPerBook,
		s.cfg.MintTolerance, s.cfg.ConfidenceHigh, s.cfg.ConfidenceMedium)

	return model.OK("mint check complete", map[string]any{
		"action":             rec.Action,
		"reason":             rec.Reason,
		"amount":             rec.Amount,
		"current_book_value": rec.CurrentBookValue,
		"target_book_value":  s.cfg.TargetBookValue,
		"confidence":         rec.Confidence,
	})
}

// Recommendation is the outcome of one policy evaluation.
type Recommendation struct {
	Action           string          `json:"action"`
	Reason           string          `json:"reason"`
	Amount           decimal.Decimal `json:"amount"`
	CurrentBookValue decimal.Decimal `json:"current_book_value"`
	Confidence       string          `json:"confidence"`
}

// evaluatePolicy is the pure policy core. Projected reserve is the current
// reserve plus the diamond value of pending books; deviation is measured
// against the projected book value. A deviation above the tolerance means the
// currency is over-backed and supply can grow; below the negative tolerance
// means it is under-backed and supply should shrink. The recommended amount
// is the integer supply change that would bring the book value back to
// target exactly.
func evaluatePolicy(t *model.TreasuryState, pendingBooks int64,
	target, diamondsPerBook, tolerance, confHigh, confMedium decimal.Decimal) Recommendation {

	circulation := t.Circulation()
	current := t.BookValue(target)

	if circulation.LessThanOrEqual(decimal.Zero) {
		return Recommendation{
			Action:           "hold",
			Reason:           "no currency in circulation",
			Amount:           decimal.Zero,
			CurrentBookValue: current,
			Confidence:       "low",
		}
	}

	projected := t.Reserve.Add(decimal.NewFromInt(pendingBooks).Mul(diamondsPerBook))
	projectedBV := projected.Div(circulation)
	deviation := projectedBV.Sub(target).Div(target)

	confidence := "low"
	abs := deviation.Abs()
	switch {
	case abs.GreaterThanOrEqual(confHigh):
		confidence = "high"
	case abs.GreaterThanOrEqual(confMedium):
		confidence = "medium"
	}

	// Ideal circulation at the target book value, given the projected reserve.
	ideal := projected.Div(target)

	switch {
	case deviation.GreaterThan(tolerance):
		amount := ideal.Sub(circulation).Floor()
		if !amount.IsPositive() {
			break
		}
		return Recommendation{
			Action: "mint",
			Reason: fmt.Sprintf("book value %s is %s%% above target %s",
				projectedBV.Round(4), deviation.Mul(oneHundred).Round(2), target),
			Amount:           amount,
			CurrentBookValue: current,
			Confidence:       confidence,
		}
	case deviation.LessThan(tolerance.Neg()):
		amount := circulation.Sub(ideal).Floor()
		if !amount.IsPositive() {
			break
		}
		return Recommendation{
			Action: "burn",
			Reason: fmt.Sprintf("book value %s is %s%% below target %s",
				projectedBV.Round(4), deviation.Abs().Mul(oneHundred).Round(2), target),
			Amount:           amount,
			CurrentBookValue: current,
			Confidence:       confidence,
		}
	}

	return Recommendation{
		Action: "hold",
		Reason: fmt.Sprintf("book value %s is within %s%% of target %s",
			projectedBV.Round(4), tolerance.Mul(oneHundred).Round(2), target),
		Amount:           decimal.Zero,
		CurrentBookValue: current,
		Confidence:       confidence,
	}
}
