package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rateoracle/internal/alerting"
	"rateoracle/internal/feed"
	"rateoracle/internal/oracle"
)

var (
	testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

type fakeLocker struct {
	acquired bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.unlocked++ }, true, nil
}

type fixture struct {
	registry *oracle.Registry
	feed     *feed.Static
	adapter  *oracle.Adapter
	ethID    oracle.FeedID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	allowAll := oracle.AuthorizerFunc(func(common.Address, oracle.Operation) bool { return true })
	registry := oracle.NewRegistry(allowAll, nil, zerolog.Nop())
	static := feed.NewStatic()

	ethID, err := oracle.ParseFeedID("ETH/USD")
	require.NoError(t, err)
	require.NoError(t, registry.SetSource(ctx, admin, "ETH", "USD", 18, 6, ethID, false))
	static.Set(ethID, uint256.MustFromDecimal("2000000000000000000000000000"), testNow.Add(-time.Hour))

	adapter := oracle.NewAdapter(registry, static, oracle.WithClock(fixedClock{now: testNow}))
	return fixture{registry: registry, feed: static, adapter: adapter, ethID: ethID}
}

func TestRoundPricesEveryConfiguredPair(t *testing.T) {
	f := newFixture(t)
	m := New(Options{}, nil, f.adapter, f.registry, nil, nil, nil, zerolog.Nop())

	results, err := m.Round(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byPair := map[oracle.Pair]Result{}
	for _, r := range results {
		byPair[r.Pair] = r
	}
	require.Equal(t, "2000000000000000000000", byPair[oracle.Pair{Base: "ETH", Quote: "USD"}].Value.Dec())
	require.Equal(t, "500000000000000", byPair[oracle.Pair{Base: "USD", Quote: "ETH"}].Value.Dec())
}

func TestRoundAlertsOnRejectionWithCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.SetMaxAge(ctx, admin, "ETH", "USD", time.Minute))

	notifier := &recordingNotifier{}
	pairs := []oracle.Pair{{Base: "ETH", Quote: "USD"}, {Base: "USD", Quote: "ETH"}}
	m := New(Options{Pairs: pairs, AlertsEnabled: true}, nil, f.adapter, f.registry, notifier, alerting.NewMemoryCooldown(time.Hour), nil, zerolog.Nop())

	results, err := m.Round(ctx, testNow)
	require.Error(t, err)
	require.ErrorIs(t, err, oracle.ErrStale)
	require.ErrorIs(t, results[0].Err, oracle.ErrFreshness)
	require.NoError(t, results[1].Err, "镜像方向的 max age 独立")

	require.Len(t, notifier.notes, 1)
	note := notifier.notes[0]
	require.Equal(t, "ETH/USD", note.Pair)
	require.Equal(t, "freshness error", note.Kind)
	require.Equal(t, f.ethID.Hex(), note.FeedID)
	require.Equal(t, "1", note.Amount)

	_, err = m.Round(ctx, testNow.Add(time.Minute))
	require.Error(t, err)
	require.Len(t, notifier.notes, 1, "冷却期内不应重复告警")
}

func TestRoundAlertsDisabled(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	m := New(Options{Pairs: []oracle.Pair{{Base: "BTC", Quote: "USD"}}}, nil, f.adapter, f.registry, notifier, nil, nil, zerolog.Nop())

	_, err := m.Round(context.Background(), testNow)
	require.ErrorIs(t, err, oracle.ErrSourceNotFound)
	require.Empty(t, notifier.notes)
}

func TestRoundNotifierFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	pairs := []oracle.Pair{{Base: "BTC", Quote: "USD"}, {Base: "ETH", Quote: "USD"}}
	m := New(Options{Pairs: pairs, AlertsEnabled: true}, nil, f.adapter, f.registry, notifier, nil, nil, zerolog.Nop())

	results, err := m.Round(context.Background(), testNow)
	require.Error(t, err)
	require.Len(t, results, 2)
	require.NoError(t, results[1].Err)
	require.Len(t, notifier.notes, 1)
}

func TestProcessTickAdvisoryLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held := &fakeLocker{acquired: false}
	m := New(Options{LockKey: 7}, nil, f.adapter, f.registry, nil, nil, held, zerolog.Nop())
	results, err := m.ProcessTick(ctx, testNow)
	require.NoError(t, err)
	require.Nil(t, results, "锁被占用时应跳过")

	free := &fakeLocker{acquired: true}
	m = New(Options{LockKey: 7}, nil, f.adapter, f.registry, nil, nil, free, zerolog.Nop())
	results, err = m.ProcessTick(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, free.unlocked)

	broken := &fakeLocker{err: errors.New("db down")}
	m = New(Options{LockKey: 7}, nil, f.adapter, f.registry, nil, nil, broken, zerolog.Nop())
	_, err = m.ProcessTick(ctx, testNow)
	require.Error(t, err)
}

func TestRunWithoutScheduler(t *testing.T) {
	m := New(Options{}, nil, nil, nil, nil, nil, nil, zerolog.Nop())
	require.Error(t, m.Run(context.Background()))
}

func TestKindName(t *testing.T) {
	require.Equal(t, "range error", KindName(oracle.ErrBelowMin))
	require.Equal(t, "feed error", KindName(errors.New("rpc down")))
}

type reloadingSources struct {
	*oracle.Registry
	loads   int
	loadErr error
}

func (s *reloadingSources) Load(context.Context) error {
	s.loads++
	return s.loadErr
}

func TestRoundReloadsSourcesEachTick(t *testing.T) {
	f := newFixture(t)
	sources := &reloadingSources{Registry: f.registry}
	m := New(Options{}, nil, f.adapter, sources, nil, nil, nil, zerolog.Nop())

	_, err := m.Round(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, sources.loads)

	// 重新加载失败时沿用缓存配置
	sources.loadErr = errors.New("db down")
	results, err := m.Round(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 2, sources.loads)
	require.Len(t, results, 2)
}
