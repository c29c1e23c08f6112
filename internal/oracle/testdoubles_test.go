package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type stubFeed struct {
	mu      sync.Mutex
	reports map[FeedID]Report
	err     error
	calls   int
}

func newStubFeed() *stubFeed {
	return &stubFeed{reports: make(map[FeedID]Report)}
}

func (f *stubFeed) set(id FeedID, rate string, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[id] = Report{Rate: uint256.MustFromDecimal(rate), UpdatedAt: updatedAt}
}

func (f *stubFeed) QueryRate(_ context.Context, id FeedID) (Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Report{}, f.err
	}
	r, ok := f.reports[id]
	if !ok {
		return Report{}, errors.New("unknown feed")
	}
	return Report{Rate: r.Rate.Clone(), UpdatedAt: r.UpdatedAt}, nil
}

func (f *stubFeed) QueryReportCount(_ context.Context, id FeedID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[id]; !ok {
		return 0, nil
	}
	return 1, nil
}

type memStore struct {
	saved   map[Pair]Source
	saveErr error
	loadErr error
	writes  int
}

func newMemStore() *memStore { return &memStore{saved: make(map[Pair]Source)} }

func (m *memStore) SaveSources(_ context.Context, sources ...Source) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.writes++
	for _, src := range sources {
		m.saved[src.Pair()] = src
	}
	return nil
}

func (m *memStore) LoadSources(_ context.Context) ([]Source, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]Source, 0, len(m.saved))
	for _, src := range m.saved {
		out = append(out, src)
	}
	return out, nil
}

func (m *memStore) LoadSource(_ context.Context, pair Pair) (Source, bool, error) {
	if m.loadErr != nil {
		return Source{}, false, m.loadErr
	}
	src, ok := m.saved[pair]
	return src, ok, nil
}

// UpdateSource 只写回 max age 与价格区间
func (m *memStore) UpdateSource(_ context.Context, pair Pair, mutate func(*Source) error) (Source, error) {
	stored, ok := m.saved[pair]
	if !ok {
		return Source{}, ErrUnconfiguredPair
	}
	next := stored
	if err := mutate(&next); err != nil {
		return Source{}, err
	}
	if m.saveErr != nil {
		return Source{}, m.saveErr
	}
	m.writes++
	stored.MaxAge = next.MaxAge
	stored.MinPrice = next.MinPrice
	stored.MaxPrice = next.MaxPrice
	m.saved[pair] = stored
	return stored, nil
}

func adminOnly() Authorizer {
	return NewRoleAuthorizer([]common.Address{admin}, nil)
}

func newTestRegistry(store SourceStore) *Registry {
	return NewRegistry(adminOnly(), store, zerolog.Nop())
}

func mustFeedID(label string) FeedID {
	id, err := ParseFeedID(label)
	if err != nil {
		panic(err)
	}
	return id
}

func u(s string) *uint256.Int { return uint256.MustFromDecimal(s) }
