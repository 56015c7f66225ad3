// Package market maintains the carat price index: a scheduled sampling loop,
// a delayed moving average that smooths the published price, and a freeze
// switch that pins the price during interventions.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/config"
	"github.com/arcabank/bank-engine/internal/metrics"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

// Event names for Subscribe.
const (
	EventPriceFreeze   = "price_freeze"
	EventPriceUnfreeze = "price_unfreeze"
	EventTick          = "tick"
)

var oneHundred = decimal.NewFromInt(100)

// Listener receives event payloads. Listeners run synchronously on the
// goroutine that triggered the event, in registration order; a slow listener
// delays the caller.
type Listener func(data map[string]any)

// Engine owns the market price state machine. It has two states, live and
// frozen, and its own lock independent of the bank's account locks.
type Engine struct {
	store store.Store
	cfg   *config.Config

	mu          sync.Mutex
	frozen      bool
	frozenPrice decimal.Decimal
	listeners   map[string][]Listener

	now func() time.Time
}

// NewEngine builds a market engine over the given store.
func NewEngine(st store.Store, cfg *config.Config) *Engine {
	return &Engine{
		store:     st,
		cfg:       cfg,
		listeners: make(map[string][]Listener),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a listener for the named event.
func (e *Engine) Subscribe(event string, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], fn)
}

// emit must be called with e.mu held; it snapshots the listener list and
// invokes outside the lock so a listener can call back into the engine.
func (e *Engine) emit(event string, data map[string]any) {
	fns := make([]Listener, len(e.listeners[event]))
	copy(fns, e.listeners[event])
	e.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
	e.mu.Lock()
}

// Tick computes one index sample and appends it, plus a treasury health
// sample on the same clock. Failures are logged and the tick is skipped;
// the next scheduled tick retries from fresh state.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()

	t, err := e.store.GetTreasury(ctx)
	if err != nil {
		slog.Error("market tick: treasury read failed", "err", err)
		return
	}
	trades, err := e.store.TradesSince(ctx, now.Add(-e.cfg.TickInterval))
	if err != nil {
		slog.Error("market tick: trade read failed", "err", err)
		return
	}

	var netFlow, volume decimal.Decimal
	var txCount int64
	for i := range trades {
		tr := &trades[i]
		value := tr.TotalCarats()
		volume = volume.Add(value)
		txCount++
		if !tr.Verified {
			continue
		}
		switch tr.Type {
		case model.TradeBuy:
			netFlow = netFlow.Add(value)
		case model.TradeSell:
			netFlow = netFlow.Sub(value)
		}
	}

	index := computeIndex(t.BookValue(e.cfg.TargetBookValue), e.cfg.TargetBookValue,
		netFlow, e.cfg.MomentumWeight, e.cfg.VolumeScale)

	sample := model.MarketSample{Timestamp: now, Index: index, Volume: volume, TxCount: txCount}
	if err := e.store.AppendMarketSample(ctx, sample); err != nil {
		slog.Error("market tick: sample append failed", "err", err)
		return
	}
	if err := e.store.AppendTreasurySample(ctx, model.TreasurySample{
		Timestamp:   now,
		Reserve:     t.Reserve,
		Circulation: t.Circulation(),
	}); err != nil {
		slog.Error("market tick: treasury sample append failed", "err", err)
	}

	metrics.MarketIndex.Set(index.InexactFloat64())
	metrics.BookValue.Set(t.BookValue(e.cfg.TargetBookValue).InexactFloat64())

	slog.Info("market tick", "index", index, "volume", volume, "tx_count", txCount)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(EventTick, map[string]any{
		"index":    index,
		"volume":   volume,
		"tx_count": txCount,
	})
}

// computeIndex maps book value and recent net trade flow to the raw index.
// An exactly on-target book value with zero flow yields 100. Flow is squashed
// to (-1, 1) so no volume spike can move the index unboundedly.
func computeIndex(bookValue, target, netFlow, momentumWeight, volumeScale decimal.Decimal) decimal.Decimal {
	base := oneHundred.Mul(bookValue).Div(target)
	momentum := netFlow.Div(volumeScale.Add(netFlow.Abs()))
	return base.Mul(decimal.NewFromInt(1).Add(momentumWeight.Mul(momentum)))
}

// delayedAverage returns the mean of cfg.AverageWindow samples ending
// cfg.AverageLag samples before the newest. With too few samples, the mean of
// whatever exists; with no samples, 100.
func (e *Engine) delayedAverage(ctx context.Context) (decimal.Decimal, error) {
	samples, err := e.store.LastMarketSamples(ctx, e.cfg.AverageWindow+e.cfg.AverageLag)
	if err != nil {
		return decimal.Zero, err
	}
	if len(samples) == 0 {
		return oneHundred, nil
	}
	end := len(samples) - e.cfg.AverageLag
	if end < 1 {
		end = 1
	}
	start := end - e.cfg.AverageWindow
	if start < 0 {
		start = 0
	}
	sum := decimal.Zero
	for _, s := range samples[start:end] {
		sum = sum.Add(s.Index)
	}
	return sum.Div(decimal.NewFromInt(int64(end - start))), nil
}

// FreezePrice pins the published price. A caller-supplied pin sets the frozen
// price directly; without one the current effective price is captured.
// Freezing an already-frozen market fails. Head banker only.
func (e *Engine) FreezePrice(ctx context.Context, actorID string, pin *decimal.Decimal) model.Result {
	if err := e.requireHeadBanker(ctx, actorID); err != nil {
		return model.Fail(err, "head banker role required")
	}

	var price decimal.Decimal
	if pin != nil {
		if pin.LessThanOrEqual(decimal.Zero) {
			return model.Fail(model.ErrValidation, "frozen price must be positive")
		}
		price = *pin
	} else {
		live, err := e.livePrice(ctx)
		if err != nil {
			return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "price unavailable")
		}
		price = live
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return model.Fail(model.ErrInvalidTransition, "price is already frozen")
	}
	e.frozen = true
	e.frozenPrice = price
	slog.Info("market price frozen", "actor", actorID, "price", price)
	e.emit(EventPriceFreeze, map[string]any{"frozen_price": price})

	return model.OK("price frozen", map[string]any{"frozen_price": price})
}

// UnfreezePrice returns the market to live pricing. Unfreezing a live market
// fails. Head banker only.
func (e *Engine) UnfreezePrice(ctx context.Context, actorID string) model.Result {
	if err := e.requireHeadBanker(ctx, actorID); err != nil {
		return model.Fail(err, "head banker role required")
	}

	price, err := e.livePrice(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "price unavailable")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.frozen {
		return model.Fail(model.ErrInvalidTransition, "price is not frozen")
	}
	e.frozen = false
	e.frozenPrice = decimal.Zero
	slog.Info("market price unfrozen", "actor", actorID, "price", price)
	e.emit(EventPriceUnfreeze, map[string]any{"current_price": price})

	return model.OK("price unfrozen", map[string]any{"current_price": price})
}

// livePrice is the unfrozen effective price: book value scaled by the delayed
// average relative to par.
func (e *Engine) livePrice(ctx context.Context) (decimal.Decimal, error) {
	t, err := e.store.GetTreasury(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	avg, err := e.delayedAverage(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return t.BookValue(e.cfg.TargetBookValue).Mul(avg).Div(oneHundred), nil
}

// Status reports the full market snapshot.
func (e *Engine) Status(ctx context.Context) model.Result {
	now := e.now()

	t, err := e.store.GetTreasury(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "market unavailable")
	}
	avg, err := e.delayedAverage(ctx)
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "market unavailable")
	}
	samples, err := e.store.MarketSamplesSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "market unavailable")
	}

	currentIndex := oneHundred
	if n := len(samples); n > 0 {
		currentIndex = samples[n-1].Index
	}

	var volume24h decimal.Decimal
	var txCount24h int64
	cutoff := now.Add(-24 * time.Hour)
	for _, s := range samples {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		volume24h = volume24h.Add(s.Volume)
		txCount24h += s.TxCount
	}

	e.mu.Lock()
	frozen := e.frozen
	frozenPrice := e.frozenPrice
	e.mu.Unlock()

	price := t.BookValue(e.cfg.TargetBookValue).Mul(avg).Div(oneHundred)
	if frozen {
		price = frozenPrice
	}

	circulation := t.Circulation()
	status := e.circulationStatus(t, frozen)

	return model.OK("market status", map[string]any{
		"effective_price":       price,
		"current_index":         currentIndex,
		"delayed_average":       avg,
		"change_1h":             e.indexChange(ctx, now.Add(-time.Hour), currentIndex),
		"change_24h":            e.indexChange(ctx, cutoff, currentIndex),
		"change_7d":             e.indexChange(ctx, now.AddDate(0, 0, -7), currentIndex),
		"volume_24h":            volume24h,
		"transaction_count_24h": txCount24h,
		"total_circulation":     circulation,
		"circulation_status":    status,
		"is_price_frozen":       frozen,
		"frozen_price":          frozenPrice,
	})
}

// circulationStatus classifies the supply health. A frozen market reports
// frozen regardless of reserve cover.
func (e *Engine) circulationStatus(t *model.TreasuryState, frozen bool) string {
	if frozen {
		return "frozen"
	}
	circ := t.Circulation()
	if circ.IsZero() {
		return "healthy"
	}
	ratio := t.Reserve.Div(circ.Mul(e.cfg.TargetBookValue))
	switch {
	case ratio.LessThan(e.cfg.ReserveRatioCritical):
		return "critical"
	case ratio.LessThan(e.cfg.ReserveRatioWarn):
		return "low"
	default:
		return "healthy"
	}
}

// indexChange returns the percent change of current against the newest sample
// at or before cutoff, however far back that sample is. With no earlier sample
// the change is reported as zero.
func (e *Engine) indexChange(ctx context.Context, cutoff time.Time, current decimal.Decimal) decimal.Decimal {
	past, err := e.store.MarketSampleBefore(ctx, cutoff)
	if err != nil || past.Index.IsZero() {
		return decimal.Zero
	}
	return current.Sub(past.Index).Div(past.Index).Mul(oneHundred)
}

// ChartData returns the index time series for the trailing day window.
func (e *Engine) ChartData(ctx context.Context, days int) model.Result {
	if days <= 0 {
		days = 7
	}
	samples, err := e.store.MarketSamplesSince(ctx, e.now().AddDate(0, 0, -days))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "chart unavailable")
	}
	return model.OK("market chart", map[string]any{"days": days, "samples": samples})
}

// TreasuryChartData returns the treasury health time series for the trailing
// day window.
func (e *Engine) TreasuryChartData(ctx context.Context, days int) model.Result {
	if days <= 0 {
		days = 7
	}
	samples, err := e.store.TreasurySamplesSince(ctx, e.now().AddDate(0, 0, -days))
	if err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "chart unavailable")
	}
	return model.OK("treasury chart", map[string]any{"days": days, "samples": samples})
}

func (e *Engine) requireHeadBanker(ctx context.Context, actorID string) error {
	a, err := e.store.GetAccount(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	if !a.Role.AtLeast(role.HeadBanker) {
		return model.ErrAuthorization
	}
	return nil
}
