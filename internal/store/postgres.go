package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	accounts(id TEXT PK, display_name TEXT, role TEXT, carats NUMERIC,
//	         golden_carats NUMERIC, minecraft_uuid TEXT, minecraft_username TEXT,
//	         created_at TIMESTAMPTZ)
//	treasury(id INT PK CHECK (id = 1), reserve NUMERIC, total_carats_minted NUMERIC,
//	         total_golden_carats_minted NUMERIC, accumulated_fees NUMERIC,
//	         vault_carats NUMERIC, vault_golden_carats NUMERIC, updated_at TIMESTAMPTZ)
//	treasury_events(id TEXT PK, kind TEXT, reserve_delta NUMERIC, carat_delta NUMERIC,
//	         currency TEXT, actor TEXT, memo TEXT, timestamp TIMESTAMPTZ)
//	trades(id BIGSERIAL PK, reporter TEXT, type TEXT, item_name TEXT, quantity BIGINT,
//	         carat_amount NUMERIC, golden_carat_amount NUMERIC, counterparty TEXT,
//	         verified BOOLEAN, verifier TEXT, verified_at TIMESTAMPTZ, timestamp TIMESTAMPTZ)
//	market_samples(timestamp TIMESTAMPTZ, price_index NUMERIC, volume NUMERIC, tx_count BIGINT)
//	treasury_samples(timestamp TIMESTAMPTZ, reserve NUMERIC, circulation NUMERIC)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, display_name, role, carats, golden_carats, minecraft_uuid, minecraft_username, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
		a.ID, a.DisplayName, string(a.Role),
		a.Carats.String(), a.GoldenCarats.String(),
		a.MinecraftUUID, a.MinecraftUsername, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: account %s", ErrAlreadyExists, a.ID)
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, display_name, role, carats::TEXT, golden_carats::TEXT,
		        COALESCE(minecraft_uuid, ''), COALESCE(minecraft_username, ''), created_at
		 FROM accounts WHERE id = $1`, id)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts
		 SET display_name = $2, role = $3,
		     carats = $4::NUMERIC, golden_carats = $5::NUMERIC,
		     minecraft_uuid = $6, minecraft_username = $7
		 WHERE id = $1`,
		a.ID, a.DisplayName, string(a.Role),
		a.Carats.String(), a.GoldenCarats.String(),
		a.MinecraftUUID, a.MinecraftUsername,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, a.ID)
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, role, carats::TEXT, golden_carats::TEXT,
		        COALESCE(minecraft_uuid, ''), COALESCE(minecraft_username, ''), created_at
		 FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) GetTreasury(ctx context.Context) (*model.TreasuryState, error) {
	var t model.TreasuryState
	var reserve, minted, goldMinted, fees, vaultC, vaultGC string

	err := s.pool.QueryRow(ctx,
		`SELECT reserve::TEXT, total_carats_minted::TEXT, total_golden_carats_minted::TEXT,
		        accumulated_fees::TEXT, vault_carats::TEXT, vault_golden_carats::TEXT, updated_at
		 FROM treasury WHERE id = 1`).
		Scan(&reserve, &minted, &goldMinted, &fees, &vaultC, &vaultGC, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Treasury starts empty; the zero state is valid.
		return &model.TreasuryState{}, nil
	}
	if err != nil {
		return nil, err
	}

	t.Reserve, _ = decimal.NewFromString(reserve)
	t.TotalCaratsMinted, _ = decimal.NewFromString(minted)
	t.TotalGoldenCaratsMinted, _ = decimal.NewFromString(goldMinted)
	t.AccumulatedFees, _ = decimal.NewFromString(fees)
	t.VaultCarats, _ = decimal.NewFromString(vaultC)
	t.VaultGoldenCarats, _ = decimal.NewFromString(vaultGC)
	return &t, nil
}

func (s *PostgresStore) UpdateTreasury(ctx context.Context, t *model.TreasuryState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO treasury (id, reserve, total_carats_minted, total_golden_carats_minted,
		                       accumulated_fees, vault_carats, vault_golden_carats, updated_at)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   reserve = EXCLUDED.reserve,
		   total_carats_minted = EXCLUDED.total_carats_minted,
		   total_golden_carats_minted = EXCLUDED.total_golden_carats_minted,
		   accumulated_fees = EXCLUDED.accumulated_fees,
		   vault_carats = EXCLUDED.vault_carats,
		   vault_golden_carats = EXCLUDED.vault_golden_carats,
		   updated_at = EXCLUDED.updated_at`,
		t.Reserve.String(), t.TotalCaratsMinted.String(), t.TotalGoldenCaratsMinted.String(),
		t.AccumulatedFees.String(), t.VaultCarats.String(), t.VaultGoldenCarats.String(),
		t.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) AppendTreasuryEvent(ctx context.Context, e *model.TreasuryEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO treasury_events (id, kind, reserve_delta, carat_delta, currency, actor, memo, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8)`,
		e.ID, string(e.Kind), e.ReserveDelta.String(), e.CaratDelta.String(),
		string(e.Currency), e.Actor, e.Memo, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) TreasuryEventsSince(ctx context.Context, since time.Time) ([]model.TreasuryEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, reserve_delta::TEXT, carat_delta::TEXT,
		        COALESCE(currency, ''), actor, COALESCE(memo, ''), timestamp
		 FROM treasury_events WHERE timestamp >= $1 ORDER BY timestamp`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.TreasuryEvent
	for rows.Next() {
		var e model.TreasuryEvent
		var kind, currency, reserveDelta, caratDelta string
		if err := rows.Scan(&e.ID, &kind, &reserveDelta, &caratDelta,
			&currency, &e.Actor, &e.Memo, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = model.TreasuryEventKind(kind)
		e.Currency = model.Currency(currency)
		e.ReserveDelta, _ = decimal.NewFromString(reserveDelta)
		e.CaratDelta, _ = decimal.NewFromString(caratDelta)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO trades (reporter, type, item_name, quantity, carat_amount, golden_carat_amount,
		                     counterparty, verified, verifier, verified_at, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10, $11)
		 RETURNING id`,
		t.Reporter, string(t.Type), t.ItemName, t.Quantity,
		t.CaratAmount.String(), t.GoldenCaratAmount.String(),
		t.Counterparty, t.Verified, t.Verifier, t.VerifiedAt, t.Timestamp,
	).Scan(&t.ID)
	return t.ID, err
}

func (s *PostgresStore) GetTrade(ctx context.Context, id int64) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx, tradeSelect+` WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: trade %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %d: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTrade(ctx context.Context, t *model.Trade) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trades SET verified = $2, verifier = $3, verified_at = $4 WHERE id = $1`,
		t.ID, t.Verified, t.Verifier, t.VerifiedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: trade %d", ErrNotFound, t.ID)
	}
	return nil
}

func (s *PostgresStore) TradesByReporter(ctx context.Context, reporter string, limit int) ([]model.Trade, error) {
	q := tradeSelect + ` WHERE reporter = $1 ORDER BY id DESC`
	args := []any{reporter}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, tradeSelect+` WHERE timestamp >= $1 ORDER BY id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) ListTrades(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, tradeSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) AppendMarketSample(ctx context.Context, sample model.MarketSample) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_samples (timestamp, price_index, volume, tx_count)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)`,
		sample.Timestamp, sample.Index.String(), sample.Volume.String(), sample.TxCount,
	)
	return err
}

func (s *PostgresStore) MarketSamplesSince(ctx context.Context, since time.Time) ([]model.MarketSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, price_index::TEXT, volume::TEXT, tx_count
		 FROM market_samples WHERE timestamp >= $1 ORDER BY timestamp`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMarketSamples(rows)
}

func (s *PostgresStore) LastMarketSamples(ctx context.Context, n int) ([]model.MarketSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, price_index::TEXT, volume::TEXT, tx_count FROM
		   (SELECT timestamp, price_index, volume, tx_count
		    FROM market_samples ORDER BY timestamp DESC LIMIT $1) latest
		 ORDER BY timestamp`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMarketSamples(rows)
}

func (s *PostgresStore) MarketSampleBefore(ctx context.Context, at time.Time) (*model.MarketSample, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT timestamp, price_index::TEXT, volume::TEXT, tx_count
		 FROM market_samples WHERE timestamp <= $1
		 ORDER BY timestamp DESC LIMIT 1`, at)

	var sm model.MarketSample
	var index, volume string
	err := row.Scan(&sm.Timestamp, &index, &volume, &sm.TxCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no market sample at or before %s", ErrNotFound, at.Format(time.RFC3339))
	}
	if err != nil {
		return nil, err
	}
	sm.Index, _ = decimal.NewFromString(index)
	sm.Volume, _ = decimal.NewFromString(volume)
	return &sm, nil
}

func (s *PostgresStore) AppendTreasurySample(ctx context.Context, sample model.TreasurySample) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO treasury_samples (timestamp, reserve, circulation)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)`,
		sample.Timestamp, sample.Reserve.String(), sample.Circulation.String(),
	)
	return err
}

func (s *PostgresStore) TreasurySamplesSince(ctx context.Context, since time.Time) ([]model.TreasurySample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, reserve::TEXT, circulation::TEXT
		 FROM treasury_samples WHERE timestamp >= $1 ORDER BY timestamp`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []model.TreasurySample
	for rows.Next() {
		var sm model.TreasurySample
		var reserve, circulation string
		if err := rows.Scan(&sm.Timestamp, &reserve, &circulation); err != nil {
			return nil, err
		}
		sm.Reserve, _ = decimal.NewFromString(reserve)
		sm.Circulation, _ = decimal.NewFromString(circulation)
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// --- scan helpers ---

const tradeSelect = `SELECT id, reporter, type, item_name, quantity,
       carat_amount::TEXT, golden_carat_amount::TEXT,
       COALESCE(counterparty, ''), verified, COALESCE(verifier, ''),
       COALESCE(verified_at, 'epoch'::TIMESTAMPTZ), timestamp
  FROM trades`

type pgxRow interface {
	Scan(dest ...any) error
}

func scanAccount(row pgxRow) (*model.Account, error) {
	var a model.Account
	var r, carats, goldenCarats string
	if err := row.Scan(&a.ID, &a.DisplayName, &r, &carats, &goldenCarats,
		&a.MinecraftUUID, &a.MinecraftUsername, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Role = role.Role(r)
	a.Carats, _ = decimal.NewFromString(carats)
	a.GoldenCarats, _ = decimal.NewFromString(goldenCarats)
	return &a, nil
}

func scanTrade(row pgxRow) (*model.Trade, error) {
	var t model.Trade
	var typ, caratAmount, goldenAmount string
	if err := row.Scan(&t.ID, &t.Reporter, &typ, &t.ItemName, &t.Quantity,
		&caratAmount, &goldenAmount,
		&t.Counterparty, &t.Verified, &t.Verifier, &t.VerifiedAt, &t.Timestamp); err != nil {
		return nil, err
	}
	t.Type = model.TradeType(typ)
	t.CaratAmount, _ = decimal.NewFromString(caratAmount)
	t.GoldenCaratAmount, _ = decimal.NewFromString(goldenAmount)
	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func scanMarketSamples(rows pgx.Rows) ([]model.MarketSample, error) {
	var samples []model.MarketSample
	for rows.Next() {
		var sm model.MarketSample
		var index, volume string
		if err := rows.Scan(&sm.Timestamp, &index, &volume, &sm.TxCount); err != nil {
			return nil, err
		}
		sm.Index, _ = decimal.NewFromString(index)
		sm.Volume, _ = decimal.NewFromString(volume)
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}
