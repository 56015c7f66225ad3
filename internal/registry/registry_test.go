package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/config"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/registry"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestRegistry(t *testing.T) (*registry.Registry, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return registry.New(ms, config.Default()), ms
}

func seedAccount(t *testing.T, ms *store.MemoryStore, id string, r role.Role) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:          id,
		DisplayName: id,
		Role:        r,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed account %s: %v", id, err)
	}
}

func report(t *testing.T, reg *registry.Registry, reporter, item string, qty int64, carats string) int64 {
	t.Helper()
	res := reg.ReportTrade(context.Background(), reporter, model.TradeBuy, item, qty, d(carats), decimal.Zero, "")
	if !res.Success {
		t.Fatalf("report failed: %s (%v)", res.Message, res.Err)
	}
	return res.Data["trade_id"].(int64)
}

// verify marks a trade verified directly in the store.
func verify(t *testing.T, ms *store.MemoryStore, id int64) {
	t.Helper()
	ctx := context.Background()
	tr, err := ms.GetTrade(ctx, id)
	if err != nil {
		t.Fatalf("get trade %d: %v", id, err)
	}
	tr.Verified = true
	tr.VerifiedAt = time.Now().UTC()
	if err := ms.UpdateTrade(ctx, tr); err != nil {
		t.Fatalf("update trade %d: %v", id, err)
	}
}

func TestReportTrade(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)

	res := reg.ReportTrade(context.Background(), "alice", model.TradeSell, "Diamond Block", 4, d("36"), decimal.Zero, "bob")
	if !res.Success {
		t.Fatalf("report failed: %s (%v)", res.Message, res.Err)
	}
	if got := res.Data["trade_id"].(int64); got != 1 {
		t.Errorf("trade_id = %d, want 1", got)
	}
	if got := res.Data["price_per_item"].(decimal.Decimal); !got.Equal(d("9")) {
		t.Errorf("price_per_item = %s, want 9", got)
	}

	trade, err := ms.GetTrade(context.Background(), 1)
	if err != nil {
		t.Fatalf("trade not persisted: %v", err)
	}
	if trade.Verified {
		t.Error("new report must start unverified")
	}
}

func TestReportTrade_Rejections(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "carl", role.Consumer)
	ctx := context.Background()

	tests := []struct {
		name     string
		reporter string
		typ      model.TradeType
		item     string
		qty      int64
		carats   string
		wantErr  error
	}{
		{"bad type", "alice", model.TradeType("LOAN"), "diamond", 1, "9", model.ErrValidation},
		{"empty item", "alice", model.TradeBuy, "  ", 1, "9", model.ErrValidation},
		{"zero quantity", "alice", model.TradeBuy, "diamond", 0, "9", model.ErrValidation},
		{"zero value", "alice", model.TradeBuy, "diamond", 1, "0", model.ErrValidation},
		{"consumer blocked", "carl", model.TradeBuy, "diamond", 1, "9", model.ErrAuthorization},
		{"unregistered", "ghost", model.TradeBuy, "diamond", 1, "9", model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.ReportTrade(ctx, tt.reporter, tt.typ, tt.item, tt.qty, d(tt.carats), decimal.Zero, "")
			if res.Success {
				t.Fatal("expected failure")
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestVerifyTrade(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "banker", role.Banker)
	ctx := context.Background()

	id := report(t, reg, "alice", "diamond", 1, "9")

	if res := reg.VerifyTrade(ctx, "banker", id); !res.Success {
		t.Fatalf("verify failed: %s (%v)", res.Message, res.Err)
	}

	trade, _ := ms.GetTrade(ctx, id)
	if !trade.Verified || trade.Verifier != "banker" {
		t.Errorf("trade not marked verified: %+v", trade)
	}

	// Verification is one-shot.
	res := reg.VerifyTrade(ctx, "banker", id)
	if res.Success {
		t.Fatal("second verification must fail")
	}
	if !errors.Is(res.Err, model.ErrAlreadyVerified) {
		t.Errorf("err = %v, want already verified", res.Err)
	}
}

func TestVerifyTrade_OwnTradeRejected(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "banker", role.Banker)

	id := report(t, reg, "banker", "diamond", 1, "9")
	res := reg.VerifyTrade(context.Background(), "banker", id)
	if res.Success {
		t.Fatal("self-verification must fail")
	}
	if !errors.Is(res.Err, model.ErrAuthorization) {
		t.Errorf("err = %v, want authorization", res.Err)
	}
}

func TestVerifyTrade_RequiresBanker(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "bob", role.User)

	id := report(t, reg, "alice", "diamond", 1, "9")
	res := reg.VerifyTrade(context.Background(), "bob", id)
	if res.Success {
		t.Fatal("user must not verify")
	}
	if !errors.Is(res.Err, model.ErrAuthorization) {
		t.Errorf("err = %v, want authorization", res.Err)
	}
}

func TestMyTraderStats_Reputation(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "banker", role.Banker)
	ctx := context.Background()

	// Two reports of 500 carats each; one verified. Volume 1000 hits the
	// reputation volume cap exactly.
	id1 := report(t, reg, "alice", "diamond", 1, "500")
	report(t, reg, "alice", "emerald", 1, "500")
	reg.VerifyTrade(ctx, "banker", id1)

	res := reg.MyTraderStats(ctx, "alice")
	if !res.Success {
		t.Fatalf("stats failed: %s", res.Message)
	}
	if got := res.Data["total_trades"].(int64); got != 2 {
		t.Errorf("total_trades = %d, want 2", got)
	}
	if got := res.Data["verified_trades"].(int64); got != 1 {
		t.Errorf("verified_trades = %d, want 1", got)
	}
	if got := res.Data["total_volume"].(decimal.Decimal); !got.Equal(d("1000")) {
		t.Errorf("total_volume = %s, want 1000", got)
	}
	if got := res.Data["average_trade_size"].(decimal.Decimal); !got.Equal(d("500")) {
		t.Errorf("average_trade_size = %s, want 500", got)
	}
	// 70 * 1/2 verified + 30 * full volume = 65.
	if got := res.Data["reputation_score"].(decimal.Decimal); !got.Equal(d("65")) {
		t.Errorf("reputation_score = %s, want 65", got)
	}
	if got := res.Data["role"].(role.Role); got != role.User {
		t.Errorf("role = %s, want user", got)
	}
	// No linked Minecraft account falls back to the display name.
	if got := res.Data["minecraft_username"].(string); got != "alice" {
		t.Errorf("minecraft_username = %q, want alice", got)
	}
	recent := res.Data["recent_trades"].([]model.Trade)
	if len(recent) != 2 {
		t.Fatalf("recent_trades = %d entries, want 2", len(recent))
	}
	if recent[0].ItemName != "emerald" {
		t.Errorf("newest recent trade = %s, want emerald", recent[0].ItemName)
	}
}

func TestTraderStats_UnregisteredNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res := reg.MyTraderStats(context.Background(), "ghost")
	if res.Success {
		t.Fatal("stats for an unregistered trader must fail")
	}
	if !errors.Is(res.Err, model.ErrNotFound) {
		t.Errorf("err = %v, want not found", res.Err)
	}
}

func TestItemPrice_VWAP(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	ctx := context.Background()

	// 4 at 40 plus 6 at 90: 130 carats over 10 units, both verified.
	verify(t, ms, report(t, reg, "alice", "Diamond", 4, "40"))
	verify(t, ms, report(t, reg, "alice", "diamond", 6, "90"))

	res := reg.ItemPrice(ctx, "DIAMOND")
	if !res.Success {
		t.Fatalf("item price failed: %s", res.Message)
	}
	if got := res.Data["found"].(bool); !got {
		t.Fatal("found = false, want true")
	}
	if got := res.Data["current_price"].(decimal.Decimal); !got.Equal(d("13")) {
		t.Errorf("current_price = %s, want 13", got)
	}
	if got := res.Data["volume_24h"].(decimal.Decimal); !got.Equal(d("130")) {
		t.Errorf("volume_24h = %s, want 130", got)
	}
	if got := res.Data["trade_count_24h"].(int64); got != 2 {
		t.Errorf("trade_count_24h = %d, want 2", got)
	}
	if got := res.Data["category"].(string); got != "Ores & Gems" {
		t.Errorf("category = %s, want Ores & Gems", got)
	}
}

func TestItemPrice_NoRecentTrades(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res := reg.ItemPrice(context.Background(), "obsidian")
	if !res.Success {
		t.Fatalf("item price failed: %s", res.Message)
	}
	if got := res.Data["found"].(bool); got {
		t.Error("found = true, want false with no trades")
	}
}

func TestItemPrice_IgnoresUnverifiedReports(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	ctx := context.Background()

	// A lone unverified report must not set a price.
	id := report(t, reg, "alice", "diamond", 1, "1000")

	res := reg.ItemPrice(ctx, "diamond")
	if !res.Success {
		t.Fatalf("item price failed: %s", res.Message)
	}
	if got := res.Data["found"].(bool); got {
		t.Fatal("found = true, want false with only unverified reports")
	}

	verify(t, ms, id)
	res = reg.ItemPrice(ctx, "diamond")
	if got := res.Data["found"].(bool); !got {
		t.Fatal("found = false after verification, want true")
	}
	if got := res.Data["current_price"].(decimal.Decimal); !got.Equal(d("1000")) {
		t.Errorf("current_price = %s, want 1000", got)
	}
}

func TestItemPrice_StaleFallback(t *testing.T) {
	reg, ms := newTestRegistry(t)
	ctx := context.Background()

	old := &model.Trade{
		Reporter:    "alice",
		Type:        model.TradeBuy,
		ItemName:    "Obsidian",
		Quantity:    4,
		CaratAmount: d("20"),
		Verified:    true,
		Timestamp:   time.Now().Add(-72 * time.Hour),
	}
	if _, err := ms.InsertTrade(ctx, old); err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	res := reg.ItemPrice(ctx, "obsidian")
	if !res.Success {
		t.Fatalf("item price failed: %s", res.Message)
	}
	if got := res.Data["found"].(bool); got {
		t.Error("found = true, want false for stale price")
	}
	if got := res.Data["item_name"].(string); got != "Obsidian" {
		t.Errorf("item_name = %q, want canonical %q", got, "Obsidian")
	}
	if got := res.Data["last_price"].(decimal.Decimal); !got.Equal(d("5")) {
		t.Errorf("last_price = %s, want 5", got)
	}
}

func TestTrendingItems_OrderedByVolume(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	ctx := context.Background()

	report(t, reg, "alice", "dirt", 64, "5")
	report(t, reg, "alice", "diamond", 10, "300")
	report(t, reg, "alice", "iron ingot", 32, "50")

	res := reg.TrendingItems(ctx, 2)
	if !res.Success {
		t.Fatalf("trending failed: %s", res.Message)
	}
	items := res.Data["items"].([]map[string]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["item_name"] != "diamond" || items[1]["item_name"] != "iron ingot" {
		t.Errorf("order = %v, %v; want diamond, iron ingot", items[0]["item_name"], items[1]["item_name"])
	}
}

func TestTopTraders_RankedByVolume(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "bob", role.User)
	ctx := context.Background()

	// bob files more reports, but alice moves more volume.
	report(t, reg, "alice", "diamond", 1, "100")
	report(t, reg, "bob", "dirt", 1, "30")
	report(t, reg, "bob", "dirt", 1, "30")

	res := reg.TopTraders(ctx, 10, 7)
	if !res.Success {
		t.Fatalf("top traders failed: %s", res.Message)
	}
	traders := res.Data["traders"].([]map[string]any)
	if traders[0]["username"] != "alice" {
		t.Errorf("first = %v, want alice (volume outranks trade count)", traders[0]["username"])
	}
	if got := traders[0]["total_volume"].(decimal.Decimal); !got.Equal(d("100")) {
		t.Errorf("total_volume = %s, want 100", got)
	}
}

func TestTopTraders_TieBreaksByEarliestReport(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "bob", role.User)
	ctx := context.Background()

	// Same count and volume; alice reported first.
	report(t, reg, "alice", "diamond", 1, "100")
	report(t, reg, "bob", "diamond", 1, "100")

	res := reg.TopTraders(ctx, 10, 7)
	if !res.Success {
		t.Fatalf("top traders failed: %s", res.Message)
	}
	traders := res.Data["traders"].([]map[string]any)
	if len(traders) != 2 {
		t.Fatalf("expected 2 traders, got %d", len(traders))
	}
	if traders[0]["username"] != "alice" {
		t.Errorf("first = %v, want alice (earliest report wins ties)", traders[0]["username"])
	}
}

func TestAllTraderReports_RequiresHeadBanker(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "banker", role.Banker)
	seedAccount(t, ms, "boss", role.HeadBanker)
	seedAccount(t, ms, "alice", role.User)
	ctx := context.Background()

	report(t, reg, "alice", "diamond", 1, "9")

	res := reg.AllTraderReports(ctx, "banker", 20)
	if res.Success {
		t.Fatal("banker must not pull full reports")
	}
	if !errors.Is(res.Err, model.ErrAuthorization) {
		t.Errorf("err = %v, want authorization", res.Err)
	}

	res = reg.AllTraderReports(ctx, "boss", 20)
	if !res.Success {
		t.Fatalf("head banker report failed: %s (%v)", res.Message, res.Err)
	}
	traders := res.Data["traders"].([]map[string]any)
	if len(traders) != 1 {
		t.Fatalf("expected 1 trader, got %d", len(traders))
	}
}

func TestAllTraderReports_LimitsTraders(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "boss", role.HeadBanker)
	seedAccount(t, ms, "alice", role.User)
	seedAccount(t, ms, "bob", role.User)
	ctx := context.Background()

	verify(t, ms, report(t, reg, "alice", "diamond", 1, "9"))
	report(t, reg, "bob", "dirt", 1, "1")

	res := reg.AllTraderReports(ctx, "boss", 1)
	if !res.Success {
		t.Fatalf("report failed: %s (%v)", res.Message, res.Err)
	}
	traders := res.Data["traders"].([]map[string]any)
	if len(traders) != 1 {
		t.Fatalf("expected 1 trader with limit 1, got %d", len(traders))
	}
	// alice's verified trade outranks bob's unverified one.
	if traders[0]["minecraft_username"] != "alice" {
		t.Errorf("first = %v, want alice", traders[0]["minecraft_username"])
	}
}

func TestMyTrades_NewestFirstWithLimit(t *testing.T) {
	reg, ms := newTestRegistry(t)
	seedAccount(t, ms, "alice", role.User)
	ctx := context.Background()

	report(t, reg, "alice", "first", 1, "1")
	report(t, reg, "alice", "second", 1, "1")
	report(t, reg, "alice", "third", 1, "1")

	res := reg.MyTrades(ctx, "alice", 2)
	if !res.Success {
		t.Fatalf("my trades failed: %s", res.Message)
	}
	trades := res.Data["trades"].([]model.Trade)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].ItemName != "third" || trades[1].ItemName != "second" {
		t.Errorf("order = %s, %s; want third, second", trades[0].ItemName, trades[1].ItemName)
	}
}
