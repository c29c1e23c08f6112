package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"rateoracle/internal/config"
	"rateoracle/internal/oracle"
)

func withStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RATEORACLE_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("set RATEORACLE_TEST_DATABASE_DSN to run PostgreSQL tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	require.NoError(t, RunMigrations(ctx, dsn))
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	store := NewStore(pool)
	t.Cleanup(store.Close)

	_, err = pool.Exec(ctx, `TRUNCATE oracle_sources`)
	require.NoError(t, err)
	return store
}

func TestStoreSaveAndLoadSources(t *testing.T) {
	store := withStore(t)
	ctx := context.Background()

	id, _ := oracle.ParseFeedID("ETH/USD")
	forward := oracle.Source{Base: "ETH", Quote: "USD", BaseDecimals: 18, QuoteDecimals: 6, FeedID: id}
	mirror := oracle.Source{Base: "USD", Quote: "ETH", BaseDecimals: 6, QuoteDecimals: 18, FeedID: id, Inverse: true}
	require.NoError(t, store.SaveSources(ctx, forward, mirror))

	forward.MaxAge = time.Minute
	forward.MinPrice = *uint256.NewInt(5)
	forward.MaxPrice = *uint256.MustFromDecimal("100000000000000000000000")
	require.NoError(t, store.SaveSources(ctx, forward))

	loaded, err := store.LoadSources(ctx)
	require.NoError(t, err)
	require.Equal(t, []oracle.Source{forward, mirror}, loaded)
}

func TestStoreUpdateSourceWritesOnlyLimits(t *testing.T) {
	store := withStore(t)
	ctx := context.Background()
	pair := oracle.Pair{Base: "ETH", Quote: "USD"}

	_, err := store.UpdateSource(ctx, pair, func(*oracle.Source) error { return nil })
	require.ErrorIs(t, err, oracle.ErrUnconfiguredPair)

	oldID, _ := oracle.ParseFeedID("old")
	newID, _ := oracle.ParseFeedID("new")
	require.NoError(t, store.SaveSources(ctx, oracle.Source{Base: "ETH", Quote: "USD", FeedID: oldID}))

	updated, err := store.UpdateSource(ctx, pair, func(src *oracle.Source) error {
		require.Equal(t, oldID, src.FeedID)
		// 只有限制参数会被写回
		src.FeedID = newID
		src.MaxAge = 90 * time.Second
		src.MinPrice = *uint256.NewInt(7)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, updated.MaxAge)
	require.Equal(t, oldID, updated.FeedID)

	stored, ok, err := store.LoadSource(ctx, pair)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, oldID, stored.FeedID)
	require.Equal(t, 90*time.Second, stored.MaxAge)
	require.Equal(t, uint64(7), stored.MinPrice.Uint64())

	_, err = store.UpdateSource(ctx, pair, func(*oracle.Source) error { return oracle.ErrInvalidBounds })
	require.ErrorIs(t, err, oracle.ErrInvalidBounds)

	_, ok, err = store.LoadSource(ctx, oracle.Pair{Base: "X", Quote: "Y"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreAdvisoryLock(t *testing.T) {
	store := withStore(t)
	ctx := context.Background()

	unlock, ok, err := store.TryAdvisoryLock(ctx, 4242)
	require.NoError(t, err)
	require.True(t, ok)

	_, again, err := store.TryAdvisoryLock(ctx, 4242)
	require.NoError(t, err)
	require.False(t, again, "同一 key 不应被重复获取")

	unlock()
	unlock2, ok, err := store.TryAdvisoryLock(ctx, 4242)
	require.NoError(t, err)
	require.True(t, ok)
	unlock2()
}

func TestNilStoreNotConfigured(t *testing.T) {
	var store *Store
	require.ErrorIs(t, store.Ping(context.Background()), ErrNotConfigured)
	_, err := store.LoadSources(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	store.Close()
}
