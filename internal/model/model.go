// Package model defines the core domain types shared across the bank engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/role"
)

// CaratsPerGoldenCarat is the fixed protocol ratio: 1 GC = 9 C.
// This is a currency constant, not a policy knob.
var CaratsPerGoldenCarat = decimal.NewFromInt(9)

// Currency identifies one of the two circulating currencies.
type Currency string

const (
	Carat       Currency = "carat"
	GoldenCarat Currency = "golden_carat"
)

// Valid reports whether c is a recognized currency.
func (c Currency) Valid() bool {
	return c == Carat || c == GoldenCarat
}

// Account holds a registered identity and its balances. The ID is an opaque
// external identity string (e.g. a Discord snowflake); the engine never
// interprets it. Balances are invariant non-negative.
type Account struct {
	ID                string          `json:"id" db:"id"`
	DisplayName       string          `json:"display_name" db:"display_name"`
	Role              role.Role       `json:"role" db:"role"`
	Carats            decimal.Decimal `json:"carats" db:"carats"`
	GoldenCarats      decimal.Decimal `json:"golden_carats" db:"golden_carats"`
	MinecraftUUID     string          `json:"minecraft_uuid,omitempty" db:"minecraft_uuid"`
	MinecraftUsername string          `json:"minecraft_username,omitempty" db:"minecraft_username"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// TotalInCarats returns the account's holdings in carat-equivalent terms.
func (a *Account) TotalInCarats() decimal.Decimal {
	return a.Carats.Add(a.GoldenCarats.Mul(CaratsPerGoldenCarat))
}

// Balance returns the balance in the given currency.
func (a *Account) Balance(c Currency) decimal.Decimal {
	if c == GoldenCarat {
		return a.GoldenCarats
	}
	return a.Carats
}

// TreasuryEventKind classifies an entry in the treasury history.
type TreasuryEventKind string

const (
	EventDeposit   TreasuryEventKind = "deposit"
	EventMint      TreasuryEventKind = "mint"
	EventBurn      TreasuryEventKind = "burn"
	EventATMProfit TreasuryEventKind = "atm_profit"
	EventFee       TreasuryEventKind = "fee"
)

// TreasuryEvent is an immutable record of a treasury mutation.
// Once appended these are never modified or deleted.
type TreasuryEvent struct {
	ID           string            `json:"id" db:"id"`
	Kind         TreasuryEventKind `json:"kind" db:"kind"`
	ReserveDelta decimal.Decimal   `json:"reserve_delta" db:"reserve_delta"` // diamonds
	CaratDelta   decimal.Decimal   `json:"carat_delta" db:"carat_delta"`     // carat-equivalent
	Currency     Currency          `json:"currency,omitempty" db:"currency"`
	Actor        string            `json:"actor" db:"actor"`
	Memo         string            `json:"memo,omitempty" db:"memo"`
	Timestamp    time.Time         `json:"timestamp" db:"timestamp"`
}

// TreasuryState holds the reserve accounting counters. The vault balances are
// treasury-held currency: mint credits them, burn debits them; user accounts
// are never burned from.
type TreasuryState struct {
	Reserve                 decimal.Decimal `json:"reserve" db:"reserve"` // diamonds
	TotalCaratsMinted       decimal.Decimal `json:"total_carats_minted" db:"total_carats_minted"`
	TotalGoldenCaratsMinted decimal.Decimal `json:"total_golden_carats_minted" db:"total_golden_carats_minted"`
	AccumulatedFees         decimal.Decimal `json:"accumulated_fees" db:"accumulated_fees"` // carat-equivalent
	VaultCarats             decimal.Decimal `json:"vault_carats" db:"vault_carats"`
	VaultGoldenCarats       decimal.Decimal `json:"vault_golden_carats" db:"vault_golden_carats"`
	UpdatedAt               time.Time       `json:"updated_at" db:"updated_at"`
}

// Circulation returns total minted supply in carat-equivalent terms.
func (t *TreasuryState) Circulation() decimal.Decimal {
	return t.TotalCaratsMinted.Add(t.TotalGoldenCaratsMinted.Mul(CaratsPerGoldenCarat))
}

// BookValue returns reserve per unit of circulation. With zero circulation
// the ratio is undefined; callers substitute the configured target.
func (t *TreasuryState) BookValue(target decimal.Decimal) decimal.Decimal {
	circ := t.Circulation()
	if circ.IsZero() {
		return target
	}
	return t.Reserve.Div(circ)
}

// TradeType classifies a peer-reported trade.
type TradeType string

const (
	TradeBuy      TradeType = "BUY"
	TradeSell     TradeType = "SELL"
	TradeExchange TradeType = "EXCHANGE"
)

// Valid reports whether t is a recognized trade type.
func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell || t == TradeExchange
}

// Trade is a peer-reported trade record. IDs are assigned by the store and
// increase monotonically. Once verified, a trade is immutable.
type Trade struct {
	ID                int64           `json:"id" db:"id"`
	Reporter          string          `json:"reporter" db:"reporter"`
	Type              TradeType       `json:"type" db:"type"`
	ItemName          string          `json:"item_name" db:"item_name"`
	Quantity          int64           `json:"quantity" db:"quantity"`
	CaratAmount       decimal.Decimal `json:"carat_amount" db:"carat_amount"`
	GoldenCaratAmount decimal.Decimal `json:"golden_carat_amount" db:"golden_carat_amount"`
	Counterparty      string          `json:"counterparty,omitempty" db:"counterparty"`
	Verified          bool            `json:"verified" db:"verified"`
	Verifier          string          `json:"verifier,omitempty" db:"verifier"`
	VerifiedAt        time.Time       `json:"verified_at,omitempty" db:"verified_at"`
	Timestamp         time.Time       `json:"timestamp" db:"timestamp"`
}

// TotalCarats returns the trade's value in carat-equivalent terms.
func (t *Trade) TotalCarats() decimal.Decimal {
	return t.CaratAmount.Add(t.GoldenCaratAmount.Mul(CaratsPerGoldenCarat))
}

// MarketSample is one point in the market price index time series.
type MarketSample struct {
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Index     decimal.Decimal `json:"index" db:"index"`
	Volume    decimal.Decimal `json:"volume" db:"volume"` // carat-equivalent trade volume
	TxCount   int64           `json:"tx_count" db:"tx_count"`
}

// TreasurySample is one point in the treasury health time series, recorded on
// the same clock as MarketSample for the charting feeds.
type TreasurySample struct {
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	Reserve     decimal.Decimal `json:"reserve" db:"reserve"`
	Circulation decimal.Decimal `json:"circulation" db:"circulation"`
}
