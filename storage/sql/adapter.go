package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

const (
	stateKeyInputs = "inputs"
	stateKeyAnchor = "cooldown_anchor"
)

// Storage is the Postgres persistence adapter
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage connects to Postgres and verifies the connection
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping DB: %w", err)
	}

	return &Storage{
		pool: pool,
	}, nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *market.PriceSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // Fine to ignore
	}()

	_, err = tx.Exec(
		ctx,
		`INSERT INTO snapshots (id, created_at) VALUES ($1, $2)`,
		snapshot.ID,
		timeToTimestampz(snapshot.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("unable to save snapshot: %w", err)
	}

	for pair, rp := range snapshot.Rates {
		samples, err := json.Marshal(rp.Samples)
		if err != nil {
			return fmt.Errorf("unable to marshal samples: %w", err)
		}

		_, err = tx.Exec(
			ctx,
			`INSERT INTO reference_prices
				(snapshot_id, fiat, trade_type, price, samples, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			snapshot.ID,
			pair.Fiat.String(),
			pair.TradeType.String(),
			floatToNumeric(rp.Price),
			samples,
			timeToTimestampz(rp.ComputedAt),
		)
		if err != nil {
			return fmt.Errorf("unable to save reference price: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unable to commit snapshot: %w", err)
	}

	return nil
}

func (s *Storage) LastSnapshot(ctx context.Context) (*market.PriceSnapshot, error) {
	var (
		id        string
		createdAt pgtype.Timestamptz
	)

	err := s.pool.QueryRow(
		ctx,
		`SELECT id, created_at FROM snapshots ORDER BY created_at DESC LIMIT 1`,
	).Scan(&id, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("unable to fetch snapshot: %w", err)
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT fiat, trade_type, price, samples, computed_at
		FROM reference_prices WHERE snapshot_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch reference prices: %w", err)
	}
	defer rows.Close()

	rates := make(map[market.Pair]*market.ReferencePrice, 4)

	for rows.Next() {
		var (
			fiat, tradeType string
			price           pgtype.Numeric
			rawSamples      []byte
			computedAt      pgtype.Timestamptz
		)

		if err := rows.Scan(&fiat, &tradeType, &price, &rawSamples, &computedAt); err != nil {
			return nil, fmt.Errorf("unable to scan reference price: %w", err)
		}

		var samples []float64
		if err := json.Unmarshal(rawSamples, &samples); err != nil {
			return nil, fmt.Errorf("unable to unmarshal samples: %w", err)
		}

		pair := market.Pair{
			Fiat:      market.Fiat(fiat),
			TradeType: market.TradeType(tradeType),
		}

		rates[pair] = &market.ReferencePrice{
			Price:      numericToFloat(price),
			Samples:    samples,
			ComputedAt: timestampzToTime(computedAt),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate reference prices: %w", err)
	}

	return &market.PriceSnapshot{
		ID:        id,
		Rates:     rates,
		CreatedAt: timestampzToTime(createdAt),
	}, nil
}

func (s *Storage) SaveInputs(ctx context.Context, inputs *market.Inputs) error {
	data, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("unable to marshal inputs: %w", err)
	}

	return s.saveState(ctx, stateKeyInputs, data)
}

func (s *Storage) Inputs(ctx context.Context) (*market.Inputs, error) {
	data, err := s.state(ctx, stateKeyInputs)
	if err != nil {
		return nil, err
	}

	var inputs market.Inputs
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("unable to unmarshal inputs: %w", err)
	}

	return &inputs, nil
}

func (s *Storage) SaveCooldownAnchor(ctx context.Context, anchor time.Time) error {
	data, err := json.Marshal(anchor.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("unable to marshal cooldown anchor: %w", err)
	}

	return s.saveState(ctx, stateKeyAnchor, data)
}

func (s *Storage) CooldownAnchor(ctx context.Context) (time.Time, error) {
	data, err := s.state(ctx, stateKeyAnchor)
	if err != nil {
		return time.Time{}, err
	}

	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return time.Time{}, fmt.Errorf("unable to unmarshal cooldown anchor: %w", err)
	}

	return time.UnixMilli(millis).UTC(), nil
}

// saveState upserts a panel state blob
func (s *Storage) saveState(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO panel_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("unable to save state %q: %w", key, err)
	}

	return nil
}

// state fetches a panel state blob
func (s *Storage) state(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.pool.QueryRow(
		ctx,
		`SELECT value FROM panel_state WHERE key = $1`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("unable to fetch state %q: %w", key, err)
	}

	return value, nil
}

// floatToNumeric converts the float value to postgres numeric
func floatToNumeric(value float64) pgtype.Numeric {
	// round to 4dp and store as integer with exponent -4
	i := int64(math.Round(value * 1e4))

	return pgtype.Numeric{
		Int:   big.NewInt(i),
		Exp:   -4,
		Valid: true,
	}
}

// numericToFloat converts the postgres value to float
func numericToFloat(value pgtype.Numeric) float64 {
	if !value.Valid || value.Int == nil {
		return 0
	}

	f, _ := new(big.Rat).SetInt(value.Int).Float64()

	if value.Exp > 0 {
		f *= math.Pow10(int(value.Exp))
	} else if value.Exp < 0 {
		f /= math.Pow10(int(-value.Exp))
	}

	return f
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time
}
