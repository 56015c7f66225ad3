// Package registry keeps the peer-reported trade ledger: players report buys
// and sells, bankers verify them, and the accumulated reports feed item
// pricing, trending lists, and trader reputation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/config"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

// Registry exposes the trade reporting operations over a store.
type Registry struct {
	store store.Store
	cfg   *config.Config
	now   func() time.Time
}

// New builds a trade registry.
func New(st store.Store, cfg *config.Config) *Registry {
	return &Registry{
		store: st,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ReportTrade records a peer trade. Anyone registered with at least the user
// role can report; reports start unverified.
func (r *Registry) ReportTrade(ctx context.Context, reporterID string, tradeType model.TradeType,
	itemName string, quantity int64, carats, goldenCarats decimal.Decimal, counterparty string) model.Result {

	if !tradeType.Valid() {
		return model.Fail(model.ErrValidation, fmt.Sprintf("unknown trade type %q", tradeType))
	}
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return model.Fail(model.ErrValidation, "item name is required")
	}
	if quantity <= 0 {
		return model.Fail(model.ErrValidation, "quantity must be positive")
	}
	if carats.IsNegative() || goldenCarats.IsNegative() {
		return model.Fail(model.ErrValidation, "amounts must not be negative")
	}

	if _, err := r.requireRole(ctx, reporterID, role.User); err != nil {
		return model.Fail(err, "registration required")
	}

	trade := &model.Trade{
		Reporter:          reporterID,
		Type:              tradeType,
		ItemName:          itemName,
		Quantity:          quantity,
		CaratAmount:       carats,
		GoldenCaratAmount: goldenCarats,
		Counterparty:      counterparty,
		Timestamp:         r.now(),
	}
	total := trade.TotalCarats()
	if total.LessThanOrEqual(decimal.Zero) {
		return model.Fail(model.ErrValidation, "trade value must be positive")
	}

	id, err := r.store.InsertTrade(ctx, trade)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "report failed")
	}

	return model.OK("trade reported", map[string]any{
		"trade_id":       id,
		"trade_type":     tradeType,
		"item_name":      itemName,
		"price_per_item": total.Div(decimal.NewFromInt(quantity)),
	})
}

// VerifyTrade marks a reported trade as witnessed. Verification is one-shot:
// a verified trade stays verified, and re-verifying fails. Reporters cannot
// verify their own trades. Banker or above.
func (r *Registry) VerifyTrade(ctx context.Context, verifierID string, tradeID int64) model.Result {
	if _, err := r.requireRole(ctx, verifierID, role.Banker); err != nil {
		return model.Fail(err, "banker role required")
	}

	trade, err := r.store.GetTrade(ctx, tradeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Fail(model.ErrNotFound, fmt.Sprintf("trade %d not found", tradeID))
		}
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "verification failed")
	}
	if trade.Reporter == verifierID {
		return model.Fail(model.ErrAuthorization, "cannot verify your own trade")
	}
	if trade.Verified {
		return model.Fail(model.ErrAlreadyVerified, fmt.Sprintf("trade %d is already verified", tradeID))
	}

	trade.Verified = true
	trade.Verifier = verifierID
	trade.VerifiedAt = r.now()
	if err := r.store.UpdateTrade(ctx, trade); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "verification failed")
	}

	return model.OK("trade verified", map[string]any{
		"trade_id": tradeID,
		"verifier": verifierID,
	})
}

// MyTrades returns the caller's most recent reports, newest first.
func (r *Registry) MyTrades(ctx context.Context, reporterID string, limit int) model.Result {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	trades, err := r.store.TradesByReporter(ctx, reporterID, limit)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "trades unavailable")
	}
	return model.OK("recent trades", map[string]any{"trades": trades})
}

// MyTraderStats returns the caller's aggregate trading statistics.
func (r *Registry) MyTraderStats(ctx context.Context, reporterID string) model.Result {
	return r.traderStats(ctx, reporterID)
}

// TraderReport returns another trader's statistics. Head banker only.
func (r *Registry) TraderReport(ctx context.Context, actorID, targetID string) model.Result {
	if _, err := r.requireRole(ctx, actorID, role.HeadBanker); err != nil {
		return model.Fail(err, "head banker role required")
	}
	return r.traderStats(ctx, targetID)
}

func (r *Registry) traderStats(ctx context.Context, reporterID string) model.Result {
	a, err := r.store.GetAccount(ctx, reporterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Fail(model.ErrNotFound, fmt.Sprintf("trader %s is not registered", reporterID))
		}
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "stats unavailable")
	}

	trades, err := r.store.TradesByReporter(ctx, reporterID, 0)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "stats unavailable")
	}

	var buys, sells, verified int64
	var volume decimal.Decimal
	for i := range trades {
		t := &trades[i]
		volume = volume.Add(t.TotalCarats())
		switch t.Type {
		case model.TradeBuy:
			buys++
		case model.TradeSell:
			sells++
		}
		if t.Verified {
			verified++
		}
	}

	total := int64(len(trades))
	avg := decimal.Zero
	if total > 0 {
		avg = volume.Div(decimal.NewFromInt(total))
	}

	minecraft := a.MinecraftUsername
	if minecraft == "" {
		minecraft = a.DisplayName
	}
	// Trades come back newest first; the head of the list is the recent slice.
	recent := trades
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return model.OK("trader stats", map[string]any{
		"role":               a.Role,
		"minecraft_username": minecraft,
		"total_trades":       total,
		"buy_count":          buys,
		"sell_count":         sells,
		"total_volume":       volume,
		"average_trade_size": avg,
		"verified_trades":    verified,
		"reputation_score":   r.reputation(total, verified, volume),
		"recent_trades":      recent,
	})
}

// reputation scores a trader 0-100: up to 70 points for the verified
// fraction of their reports and up to 30 for cumulative volume, capped at
// the configured threshold.
func (r *Registry) reputation(total, verified int64, volume decimal.Decimal) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	verifiedPart := decimal.NewFromInt(70).
		Mul(decimal.NewFromInt(verified)).
		Div(decimal.NewFromInt(total))
	volumeFrac := volume.Div(r.cfg.ReputationVolumeThreshold)
	if volumeFrac.GreaterThan(decimal.NewFromInt(1)) {
		volumeFrac = decimal.NewFromInt(1)
	}
	return verifiedPart.Add(decimal.NewFromInt(30).Mul(volumeFrac))
}

// ItemPrice returns the 24h volume-weighted average price for an item,
// matched case-insensitively. Only verified trades set the price; an
// unverified report alone cannot move it. With no verified trades in the
// window the last known verified price is quoted as stale.
func (r *Registry) ItemPrice(ctx context.Context, itemName string) model.Result {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return model.Fail(model.ErrValidation, "item name is required")
	}

	trades, err := r.store.TradesSince(ctx, r.now().Add(-24*time.Hour))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "price unavailable")
	}

	lower := strings.ToLower(itemName)
	var volume decimal.Decimal
	var quantity, count int64
	canonical := itemName
	for i := range trades {
		t := &trades[i]
		if !t.Verified || strings.ToLower(t.ItemName) != lower {
			continue
		}
		canonical = t.ItemName
		volume = volume.Add(t.TotalCarats())
		quantity += t.Quantity
		count++
	}

	if count == 0 || quantity == 0 {
		return r.stalePrice(ctx, itemName, lower)
	}

	return model.OK("item price", map[string]any{
		"found":           true,
		"item_name":       canonical,
		"category":        categorize(canonical),
		"current_price":   volume.Div(decimal.NewFromInt(quantity)),
		"volume_24h":      volume,
		"trade_count_24h": count,
	})
}

// stalePrice falls back to the last verified unit price when an item has
// trade history but nothing verified in the 24h window.
func (r *Registry) stalePrice(ctx context.Context, itemName, lower string) model.Result {
	trades, err := r.store.ListTrades(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "price unavailable")
	}

	for i := len(trades) - 1; i >= 0; i-- {
		t := &trades[i]
		if !t.Verified || strings.ToLower(t.ItemName) != lower || t.Quantity == 0 {
			continue
		}
		return model.OK("no recent trades", map[string]any{
			"found":           false,
			"item_name":       t.ItemName,
			"category":        categorize(t.ItemName),
			"last_price":      t.TotalCarats().Div(decimal.NewFromInt(t.Quantity)),
			"last_traded_at":  t.Timestamp,
			"volume_24h":      decimal.Zero,
			"trade_count_24h": 0,
		})
	}

	return model.OK("no recent trades", map[string]any{
		"found":     false,
		"item_name": itemName,
	})
}

// TrendingItems lists the items with the highest 24h trade volume.
func (r *Registry) TrendingItems(ctx context.Context, limit int) model.Result {
	if limit <= 0 || limit > 25 {
		limit = 5
	}

	trades, err := r.store.TradesSince(ctx, r.now().Add(-24*time.Hour))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "trending unavailable")
	}

	type agg struct {
		name     string
		volume   decimal.Decimal
		quantity int64
		firstID  int64
	}
	byItem := make(map[string]*agg)
	for i := range trades {
		t := &trades[i]
		key := strings.ToLower(t.ItemName)
		a, ok := byItem[key]
		if !ok {
			a = &agg{name: t.ItemName, firstID: t.ID}
			byItem[key] = a
		}
		a.volume = a.volume.Add(t.TotalCarats())
		a.quantity += t.Quantity
	}

	items := make([]*agg, 0, len(byItem))
	for _, a := range byItem {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].volume.Equal(items[j].volume) {
			return items[i].volume.GreaterThan(items[j].volume)
		}
		return items[i].firstID < items[j].firstID
	})
	if len(items) > limit {
		items = items[:limit]
	}

	out := make([]map[string]any, 0, len(items))
	for _, a := range items {
		price := decimal.Zero
		if a.quantity > 0 {
			price = a.volume.Div(decimal.NewFromInt(a.quantity))
		}
		out = append(out, map[string]any{
			"item_name":     a.name,
			"current_price": price,
			"volume_24h":    a.volume,
		})
	}

	return model.OK("trending items", map[string]any{"items": out})
}

// TopTraders lists reporters over a trailing day window ranked by total
// trade volume; ties go to the trader with the earliest report.
func (r *Registry) TopTraders(ctx context.Context, limit, days int) model.Result {
	if limit <= 0 || limit > 25 {
		limit = 10
	}
	if days <= 0 {
		days = 7
	}

	trades, err := r.store.TradesSince(ctx, r.now().AddDate(0, 0, -days))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "leaderboard unavailable")
	}

	type agg struct {
		reporter string
		count    int64
		volume   decimal.Decimal
		firstID  int64
	}
	byTrader := make(map[string]*agg)
	for i := range trades {
		t := &trades[i]
		a, ok := byTrader[t.Reporter]
		if !ok {
			a = &agg{reporter: t.Reporter, firstID: t.ID}
			byTrader[t.Reporter] = a
		}
		a.count++
		a.volume = a.volume.Add(t.TotalCarats())
	}

	traders := make([]*agg, 0, len(byTrader))
	for _, a := range byTrader {
		traders = append(traders, a)
	}
	sort.Slice(traders, func(i, j int) bool {
		if !traders[i].volume.Equal(traders[j].volume) {
			return traders[i].volume.GreaterThan(traders[j].volume)
		}
		return traders[i].firstID < traders[j].firstID
	})
	if len(traders) > limit {
		traders = traders[:limit]
	}

	out := make([]map[string]any, 0, len(traders))
	for _, a := range traders {
		out = append(out, map[string]any{
			"username":     r.displayName(ctx, a.reporter),
			"trade_count":  a.count,
			"total_volume": a.volume,
		})
	}

	return model.OK("top traders", map[string]any{"days": days, "traders": out})
}

// AllTraderReports returns reputation summaries for the top reporters in the
// ledger, best reputation first. Head banker only.
func (r *Registry) AllTraderReports(ctx context.Context, actorID string, limit int) model.Result {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if _, err := r.requireRole(ctx, actorID, role.HeadBanker); err != nil {
		return model.Fail(err, "head banker role required")
	}

	trades, err := r.store.ListTrades(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "report unavailable")
	}

	type agg struct {
		reporter string
		total    int64
		verified int64
		volume   decimal.Decimal
		firstID  int64
	}
	byTrader := make(map[string]*agg)
	for i := range trades {
		t := &trades[i]
		a, ok := byTrader[t.Reporter]
		if !ok {
			a = &agg{reporter: t.Reporter, firstID: t.ID}
			byTrader[t.Reporter] = a
		}
		a.total++
		if t.Verified {
			a.verified++
		}
		a.volume = a.volume.Add(t.TotalCarats())
	}

	traders := make([]*agg, 0, len(byTrader))
	for _, a := range byTrader {
		traders = append(traders, a)
	}
	sort.Slice(traders, func(i, j int) bool {
		ri := r.reputation(traders[i].total, traders[i].verified, traders[i].volume)
		rj := r.reputation(traders[j].total, traders[j].verified, traders[j].volume)
		if !ri.Equal(rj) {
			return ri.GreaterThan(rj)
		}
		return traders[i].firstID < traders[j].firstID
	})
	if len(traders) > limit {
		traders = traders[:limit]
	}

	out := make([]map[string]any, 0, len(traders))
	for _, a := range traders {
		out = append(out, map[string]any{
			"minecraft_username": r.minecraftName(ctx, a.reporter),
			"reputation":         r.reputation(a.total, a.verified, a.volume),
			"total_trades":       a.total,
			"total_volume":       a.volume,
		})
	}

	return model.OK("trader reports", map[string]any{"traders": out})
}

func (r *Registry) requireRole(ctx context.Context, id string, min role.Role) (*model.Account, error) {
	a, err := r.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	if !a.Role.AtLeast(min) {
		return nil, model.ErrAuthorization
	}
	return a, nil
}

// displayName resolves an account's display name, falling back to the raw ID.
func (r *Registry) displayName(ctx context.Context, id string) string {
	a, err := r.store.GetAccount(ctx, id)
	if err != nil || a.DisplayName == "" {
		return id
	}
	return a.DisplayName
}

// minecraftName resolves a linked Minecraft username, falling back to the
// display name.
func (r *Registry) minecraftName(ctx context.Context, id string) string {
	a, err := r.store.GetAccount(ctx, id)
	if err != nil {
		return id
	}
	if a.MinecraftUsername != "" {
		return a.MinecraftUsername
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return id
}
