package bank_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/bank"
	"github.com/arcabank/bank-engine/internal/config"
	"github.com/arcabank/bank-engine/internal/metrics"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestBank creates a bank service over a fresh in-memory store with the
// default policy constants.
func newTestBank(t *testing.T) (*bank.Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return bank.NewService(ms, config.Default()), ms
}

// seedAccount creates an account directly in the store.
func seedAccount(t *testing.T, ms *store.MemoryStore, id string, r role.Role, carats, goldenCarats decimal.Decimal) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:           id,
		DisplayName:  id,
		Role:         r,
		Carats:       carats,
		GoldenCarats: goldenCarats,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed account %s: %v", id, err)
	}
}

// totalSystemCarats sums account holdings plus accumulated fees, all in
// carat-equivalent terms. Transfers and exchanges must leave it unchanged.
func totalSystemCarats(t *testing.T, ms *store.MemoryStore) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	accounts, err := ms.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	sum := decimal.Zero
	for i := range accounts {
		sum = sum.Add(accounts[i].TotalInCarats())
	}
	tr, err := ms.GetTreasury(ctx)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	return sum.Add(tr.AccumulatedFees)
}

func TestTransfer_FeeWithheldFromRecipient(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("100"), decimal.Zero)
	seedAccount(t, ms, "bob", role.User, decimal.Zero, decimal.Zero)

	feesBefore := testutil.ToFloat64(metrics.FeesCollected)
	res := svc.Transfer(context.Background(), "alice", "bob", d("100"), model.Carat)
	if !res.Success {
		t.Fatalf("transfer failed: %s (%v)", res.Message, res.Err)
	}

	if got := res.Data["amount_sent"].(decimal.Decimal); !got.Equal(d("100")) {
		t.Errorf("amount_sent = %s, want 100", got)
	}
	if got := res.Data["amount_received"].(decimal.Decimal); !got.Equal(d("99")) {
		t.Errorf("amount_received = %s, want 99", got)
	}
	if got := res.Data["fee"].(decimal.Decimal); !got.Equal(d("1")) {
		t.Errorf("fee = %s, want 1", got)
	}

	alice, _ := ms.GetAccount(context.Background(), "alice")
	bob, _ := ms.GetAccount(context.Background(), "bob")
	if !alice.Carats.IsZero() {
		t.Errorf("sender balance = %s, want 0", alice.Carats)
	}
	if !bob.Carats.Equal(d("99")) {
		t.Errorf("recipient balance = %s, want 99", bob.Carats)
	}

	tr, _ := ms.GetTreasury(context.Background())
	if !tr.AccumulatedFees.Equal(d("1")) {
		t.Errorf("accumulated fees = %s, want 1", tr.AccumulatedFees)
	}
	if diff := testutil.ToFloat64(metrics.FeesCollected) - feesBefore; diff != 1 {
		t.Errorf("fee counter moved by %v, want 1", diff)
	}
}

func TestTransfer_ExactBalanceToZero(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("50"), decimal.Zero)
	seedAccount(t, ms, "bob", role.User, decimal.Zero, decimal.Zero)

	res := svc.Transfer(context.Background(), "alice", "bob", d("50"), model.Carat)
	if !res.Success {
		t.Fatalf("transfer of exact balance should succeed: %s", res.Message)
	}
	alice, _ := ms.GetAccount(context.Background(), "alice")
	if !alice.Carats.IsZero() {
		t.Errorf("balance = %s, want exactly 0", alice.Carats)
	}
}

func TestTransfer_Rejections(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("10"), decimal.Zero)
	seedAccount(t, ms, "bob", role.User, decimal.Zero, decimal.Zero)
	ctx := context.Background()

	tests := []struct {
		name    string
		from    string
		to      string
		amount  decimal.Decimal
		cur     model.Currency
		wantErr error
	}{
		{"insufficient balance", "alice", "bob", d("10.01"), model.Carat, model.ErrInsufficientBalance},
		{"zero amount", "alice", "bob", decimal.Zero, model.Carat, model.ErrValidation},
		{"negative amount", "alice", "bob", d("-5"), model.Carat, model.ErrValidation},
		{"self transfer", "alice", "alice", d("1"), model.Carat, model.ErrValidation},
		{"unknown currency", "alice", "bob", d("1"), model.Currency("doubloon"), model.ErrValidation},
		{"unregistered sender", "ghost", "bob", d("1"), model.Carat, model.ErrNotFound},
		{"unregistered recipient", "alice", "ghost", d("1"), model.Carat, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Transfer(ctx, tt.from, tt.to, tt.amount, tt.cur)
			if res.Success {
				t.Fatal("expected failure")
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}

	// Failed transfers leave balances untouched.
	alice, _ := ms.GetAccount(ctx, "alice")
	if !alice.Carats.Equal(d("10")) {
		t.Errorf("sender balance after rejections = %s, want 10", alice.Carats)
	}
}

func TestTransfer_ConservationUnderConcurrency(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("1000"), decimal.Zero)
	seedAccount(t, ms, "bob", role.User, d("1000"), decimal.Zero)

	before := totalSystemCarats(t, ms)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.Transfer(context.Background(), "alice", "bob", d("10"), model.Carat)
		}()
		go func() {
			defer wg.Done()
			svc.Transfer(context.Background(), "bob", "alice", d("10"), model.Carat)
		}()
	}
	wg.Wait()

	after := totalSystemCarats(t, ms)
	if !after.Equal(before) {
		t.Errorf("system total changed: before %s, after %s", before, after)
	}
}

func TestExchange_CaratsToGolden(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("90"), decimal.Zero)

	res := svc.Exchange(context.Background(), "alice", d("90"), model.Carat, model.GoldenCarat)
	if !res.Success {
		t.Fatalf("exchange failed: %s (%v)", res.Message, res.Err)
	}

	// 90 C -> 10 GC gross, 2% fee -> 9.8 GC.
	if got := res.Data["to_amount"].(decimal.Decimal); !got.Equal(d("9.8")) {
		t.Errorf("to_amount = %s, want 9.8", got)
	}
	alice, _ := ms.GetAccount(context.Background(), "alice")
	if !alice.Carats.IsZero() {
		t.Errorf("carats = %s, want 0", alice.Carats)
	}
	if !alice.GoldenCarats.Equal(d("9.8")) {
		t.Errorf("golden carats = %s, want 9.8", alice.GoldenCarats)
	}
}

func TestExchange_RoundTripNeverProfits(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("900"), decimal.Zero)

	ctx := context.Background()
	start := totalSystemCarats(t, ms)

	if res := svc.Exchange(ctx, "alice", d("900"), model.Carat, model.GoldenCarat); !res.Success {
		t.Fatalf("forward exchange failed: %s", res.Message)
	}
	alice, _ := ms.GetAccount(ctx, "alice")
	if res := svc.Exchange(ctx, "alice", alice.GoldenCarats, model.GoldenCarat, model.Carat); !res.Success {
		t.Fatalf("reverse exchange failed: %s", res.Message)
	}

	alice, _ = ms.GetAccount(ctx, "alice")
	if alice.TotalInCarats().GreaterThanOrEqual(d("900")) {
		t.Errorf("round trip should lose to fees: started 900, ended %s", alice.TotalInCarats())
	}
	if got := totalSystemCarats(t, ms); !got.Equal(start) {
		t.Errorf("system total changed: before %s, after %s", start, got)
	}
}

func TestExchange_SameCurrencyRejected(t *testing.T) {
	svc, ms := newTestBank(t)
	seedAccount(t, ms, "alice", role.User, d("10"), decimal.Zero)

	res := svc.Exchange(context.Background(), "alice", d("5"), model.Carat, model.Carat)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, model.ErrValidation) {
		t.Errorf("err = %v, want validation", res.Err)
	}
}
