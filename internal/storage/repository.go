package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rateoracle/internal/oracle"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSourceSQL = `INSERT INTO oracle_sources (
        base_asset,
        quote_asset,
        base_decimals,
        quote_decimals,
        feed_id,
        inverse,
        max_age_seconds,
        min_price,
        max_price,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,now()
    )
    ON CONFLICT (base_asset, quote_asset) DO UPDATE
    SET
        base_decimals  = EXCLUDED.base_decimals,
        quote_decimals = EXCLUDED.quote_decimals,
        feed_id        = EXCLUDED.feed_id,
        inverse        = EXCLUDED.inverse,
        max_age_seconds = EXCLUDED.max_age_seconds,
        min_price      = EXCLUDED.min_price,
        max_price      = EXCLUDED.max_price,
        updated_at     = EXCLUDED.updated_at;`

	listSourcesSQL = `SELECT
        base_asset,
        quote_asset,
        base_decimals,
        quote_decimals,
        feed_id,
        inverse,
        max_age_seconds,
        min_price::text,
        max_price::text
    FROM oracle_sources
    ORDER BY base_asset, quote_asset;`

	selectSourceSQL = `SELECT
        base_asset,
        quote_asset,
        base_decimals,
        quote_decimals,
        feed_id,
        inverse,
        max_age_seconds,
        min_price::text,
        max_price::text
    FROM oracle_sources
    WHERE base_asset = $1 AND quote_asset = $2`

	updateLimitsSQL = `UPDATE oracle_sources
    SET
        max_age_seconds = $3,
        min_price       = $4::numeric,
        max_price       = $5::numeric,
        updated_at      = now()
    WHERE base_asset = $1 AND quote_asset = $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists the source registry in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// connection is released either way; the lock dies with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSources upserts every source in a single transaction.
func (s *Store) SaveSources(ctx context.Context, sources ...oracle.Source) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, src := range sources {
			row := encodeSource(src)
			if _, err := tx.Exec(ctx, upsertSourceSQL,
				row.BaseAsset,
				row.QuoteAsset,
				row.BaseDecimals,
				row.QuoteDecimals,
				row.FeedID,
				row.Inverse,
				row.MaxAgeSeconds,
				row.MinPrice,
				row.MaxPrice,
			); err != nil {
				return fmt.Errorf("upsert source %s/%s: %w", row.BaseAsset, row.QuoteAsset, err)
			}
		}
		return nil
	})
}

// LoadSources reads every persisted source.
func (s *Store) LoadSources(ctx context.Context) ([]oracle.Source, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSourcesSQL)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []oracle.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// LoadSource reads one persisted source.
func (s *Store) LoadSource(ctx context.Context, pair oracle.Pair) (oracle.Source, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return oracle.Source{}, false, err
	}

	src, err := scanSource(pool.QueryRow(ctx, selectSourceSQL, string(pair.Base), string(pair.Quote)))
	if errors.Is(err, pgx.ErrNoRows) {
		return oracle.Source{}, false, nil
	}
	if err != nil {
		return oracle.Source{}, false, err
	}
	return src, true, nil
}

// UpdateSource locks the pair's row, applies mutate to the stored values and
// writes back only the staleness ceiling and price bounds.
func (s *Store) UpdateSource(ctx context.Context, pair oracle.Pair, mutate func(*oracle.Source) error) (oracle.Source, error) {
	pool, err := s.getPool()
	if err != nil {
		return oracle.Source{}, err
	}

	var out oracle.Source
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		src, err := scanSource(tx.QueryRow(ctx, selectSourceSQL+" FOR UPDATE", string(pair.Base), string(pair.Quote)))
		if errors.Is(err, pgx.ErrNoRows) {
			return oracle.ErrUnconfiguredPair
		}
		if err != nil {
			return err
		}

		next := src
		if err := mutate(&next); err != nil {
			return err
		}
		src.MaxAge = next.MaxAge
		src.MinPrice = next.MinPrice
		src.MaxPrice = next.MaxPrice

		row := encodeSource(src)
		if _, err := tx.Exec(ctx, updateLimitsSQL,
			row.BaseAsset,
			row.QuoteAsset,
			row.MaxAgeSeconds,
			row.MinPrice,
			row.MaxPrice,
		); err != nil {
			return fmt.Errorf("update source %s: %w", pair, err)
		}
		out = src
		return nil
	})
	if err != nil {
		return oracle.Source{}, err
	}
	return out, nil
}

func scanSource(row pgx.Row) (oracle.Source, error) {
	var r sourceRow
	if err := row.Scan(
		&r.BaseAsset,
		&r.QuoteAsset,
		&r.BaseDecimals,
		&r.QuoteDecimals,
		&r.FeedID,
		&r.Inverse,
		&r.MaxAgeSeconds,
		&r.MinPrice,
		&r.MaxPrice,
	); err != nil {
		return oracle.Source{}, fmt.Errorf("scan source: %w", err)
	}
	return decodeSource(r)
}

var (
	_ oracle.SourceStore = (*Store)(nil)
	_ AdvisoryLocker     = (*Store)(nil)
)
