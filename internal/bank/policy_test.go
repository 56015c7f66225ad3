package bank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
)

// seedTreasury writes treasury counters directly into the store.
func seedTreasury(t *testing.T, ms interface {
	UpdateTreasury(context.Context, *model.TreasuryState) error
}, reserve, minted string) {
	t.Helper()
	err := ms.UpdateTreasury(context.Background(), &model.TreasuryState{
		Reserve:           d(reserve),
		TotalCaratsMinted: d(minted),
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed treasury: %v", err)
	}
}

func TestMintCheck_HoldAtPar(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "90", "90")

	res := svc.MintCheck(context.Background(), "banker", 0)
	if !res.Success {
		t.Fatalf("mint check failed: %s (%v)", res.Message, res.Err)
	}
	if got := res.Data["action"].(string); got != "hold" {
		t.Errorf("action = %s, want hold", got)
	}
	if got := res.Data["amount"].(decimal.Decimal); !got.IsZero() {
		t.Errorf("amount = %s, want 0", got)
	}
}

func TestMintCheck_MintWhenOverBacked(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "120", "90")

	res := svc.MintCheck(context.Background(), "banker", 0)
	if !res.Success {
		t.Fatalf("mint check failed: %s (%v)", res.Message, res.Err)
	}
	if got := res.Data["action"].(string); got != "mint" {
		t.Fatalf("action = %s, want mint", got)
	}
	// 120 reserve at target 1.0 supports 120 carats; 30 more can be minted.
	if got := res.Data["amount"].(decimal.Decimal); !got.Equal(d("30")) {
		t.Errorf("amount = %s, want 30", got)
	}
	// Deviation 33% is well past the high-confidence band.
	if got := res.Data["confidence"].(string); got != "high" {
		t.Errorf("confidence = %s, want high", got)
	}
}

func TestMintCheck_BurnWhenUnderBacked(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "60", "90")

	res := svc.MintCheck(context.Background(), "banker", 0)
	if !res.Success {
		t.Fatalf("mint check failed: %s (%v)", res.Message, res.Err)
	}
	if got := res.Data["action"].(string); got != "burn" {
		t.Fatalf("action = %s, want burn", got)
	}
	if got := res.Data["amount"].(decimal.Decimal); !got.Equal(d("30")) {
		t.Errorf("amount = %s, want 30", got)
	}
}

func TestMintCheck_MediumConfidenceBand(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	// Deviation 8%: past the 5% tolerance, below the 10% high band.
	seedTreasury(t, ms, "108", "100")

	res := svc.MintCheck(context.Background(), "banker", 0)
	if got := res.Data["action"].(string); got != "mint" {
		t.Fatalf("action = %s, want mint", got)
	}
	if got := res.Data["confidence"].(string); got != "medium" {
		t.Errorf("confidence = %s, want medium", got)
	}
}

func TestMintCheck_PendingBooksProjectReserve(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "90", "90")

	// One pending book adds 90 projected diamonds: 180 against 90 carats.
	res := svc.MintCheck(context.Background(), "banker", 1)
	if got := res.Data["action"].(string); got != "mint" {
		t.Fatalf("action = %s, want mint", got)
	}
	if got := res.Data["amount"].(decimal.Decimal); !got.Equal(d("90")) {
		t.Errorf("amount = %s, want 90", got)
	}
}

func TestMintCheck_ZeroCirculationHolds(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "500", "0")

	res := svc.MintCheck(context.Background(), "banker", 0)
	if !res.Success {
		t.Fatalf("mint check failed: %s (%v)", res.Message, res.Err)
	}
	if got := res.Data["action"].(string); got != "hold" {
		t.Errorf("action = %s, want hold with empty circulation", got)
	}
}

func TestMintCheck_IsAdvisoryOnly(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "banker", role.HeadBanker, decimal.Zero, decimal.Zero)
	seedTreasury(t, ms, "120", "90")
	ctx := context.Background()

	before, _ := ms.GetTreasury(ctx)
	first := svc.MintCheck(ctx, "banker", 0)
	second := svc.MintCheck(ctx, "banker", 0)
	after, _ := ms.GetTreasury(ctx)

	if !after.Reserve.Equal(before.Reserve) || !after.TotalCaratsMinted.Equal(before.TotalCaratsMinted) {
		t.Error("mint check mutated the treasury")
	}
	if first.Data["action"] != second.Data["action"] {
		t.Error("repeated checks on unchanged state must agree")
	}
	if !first.Data["amount"].(decimal.Decimal).Equal(second.Data["amount"].(decimal.Decimal)) {
		t.Error("repeated checks must recommend the same amount")
	}
}

func TestMintCheck_RequiresHeadBanker(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, decimal.Zero, decimal.Zero)
	seedAccount(t, ms, "teller", role.Banker, decimal.Zero, decimal.Zero)

	for _, id := range []string{"alice", "teller"} {
		res := svc.MintCheck(context.Background(), id, 0)
		if res.Success {
			t.Fatalf("%s must not run mint check", id)
		}
		if !errors.Is(res.Err, model.ErrAuthorization) {
			t.Errorf("%s: err = %v, want authorization", id, res.Err)
		}
	}
}
