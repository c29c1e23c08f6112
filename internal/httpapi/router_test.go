package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rateoracle/internal/feed"
	"rateoracle/internal/oracle"
)

const adminHex = "0x00000000000000000000000000000000000000aa"

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type env struct {
	handler  http.Handler
	registry *oracle.Registry
	feed     *feed.Static
}

func setup(t *testing.T, ping func(context.Context) error) env {
	t.Helper()
	auth := oracle.NewRoleAuthorizer([]common.Address{common.HexToAddress(adminHex)}, nil)
	registry := oracle.NewRegistry(auth, nil, zerolog.Nop())
	static := feed.NewStatic()
	adapter := oracle.NewAdapter(registry, static, oracle.WithClock(fixedClock{now: testNow}))
	return env{
		handler:  NewRouter(NewServer(registry, adapter, ping, zerolog.Nop())),
		registry: registry,
		feed:     static,
	}
}

func do(t *testing.T, h http.Handler, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func configureETH(t *testing.T, e env) oracle.FeedID {
	t.Helper()
	rec := do(t, e.handler, http.MethodPut, "/v1/sources/ETH/USDC", adminHex, map[string]any{
		"feed_id":        "ETH/USD",
		"base_decimals":  18,
		"quote_decimals": 6,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id, err := oracle.ParseFeedID("ETH/USD")
	require.NoError(t, err)
	return id
}

func TestHealthz(t *testing.T) {
	e := setup(t, nil)
	rec := do(t, e.handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	e := setup(t, func(context.Context) error { return errors.New("down") })
	rec := do(t, e.handler, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	e = setup(t, nil)
	rec = do(t, e.handler, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "READY", rec.Body.String())
}

func TestSetSourceAndPeek(t *testing.T) {
	e := setup(t, nil)
	id := configureETH(t, e)
	e.feed.Set(id, uint256.MustFromDecimal("3000000000000000000000000000"), testNow.Add(-time.Minute))

	rec := do(t, e.handler, http.MethodGet, "/v1/peek/ETH/USDC?amount=2000000000000000000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "6000000000000000000000", resp.Value)
	require.Equal(t, "6000", resp.ValueDecimal)
	require.True(t, resp.UpdateTime.Equal(testNow.Add(-time.Minute)))

	// mirror created with default amount of 1.0
	rec = do(t, e.handler, http.MethodGet, "/v1/get/USDC/ETH", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "333333333333333", resp.Value)
}

func TestSourceStatus(t *testing.T) {
	e := setup(t, nil)

	rec := do(t, e.handler, http.MethodGet, "/v1/sources/ETH/USDC", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status sourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Configured)
	require.Empty(t, status.FeedID)

	configureETH(t, e)
	rec = do(t, e.handler, http.MethodPut, "/v1/sources/ETH/USDC/max-age", adminHex, map[string]string{"max_age": "90s"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, e.handler, http.MethodPut, "/v1/sources/ETH/USDC/bounds", adminHex, map[string]string{"min": "1", "max": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e.handler, http.MethodGet, "/v1/sources/ETH/USDC", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Configured)
	require.True(t, status.HasStaleness)
	require.True(t, status.HasBounds)
	require.Equal(t, "1m30s", status.MaxAge)
	require.Equal(t, "100", *status.MaxPrice)
	require.Equal(t, uint8(6), *status.QuoteDecimals)

	rec = do(t, e.handler, http.MethodGet, "/v1/sources/USDC/ETH", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Configured)
	require.True(t, status.Inverse)
	require.False(t, status.HasStaleness, "镜像方向不继承 max age")
}

func TestErrorMapping(t *testing.T) {
	e := setup(t, nil)
	id := configureETH(t, e)

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		prep   func()
		want   int
		kind   string
	}{
		{name: "unconfigured pair", method: http.MethodGet, path: "/v1/peek/BTC/USD", want: http.StatusNotFound, kind: "market data error"},
		{name: "feed missing report", method: http.MethodGet, path: "/v1/peek/ETH/USDC", want: http.StatusBadGateway},
		{
			name: "zero rate", method: http.MethodGet, path: "/v1/peek/ETH/USDC",
			prep: func() { e.feed.Set(id, new(uint256.Int), testNow) },
			want: http.StatusBadGateway, kind: "market data error",
		},
		{
			name: "stale", method: http.MethodGet, path: "/v1/peek/ETH/USDC",
			prep: func() {
				e.feed.Set(id, uint256.MustFromDecimal("1000000000000000000000000"), testNow.Add(-time.Hour))
				require.NoError(t, e.registry.SetMaxAge(context.Background(), common.HexToAddress(adminHex), "ETH", "USDC", time.Minute))
			},
			want: http.StatusServiceUnavailable, kind: "freshness error",
		},
		{
			name: "below min", method: http.MethodGet, path: "/v1/peek/ETH/USDC",
			prep: func() {
				e.feed.Set(id, uint256.MustFromDecimal("1000000000000000000000000"), testNow)
				require.NoError(t, e.registry.SetBounds(context.Background(), common.HexToAddress(adminHex), "ETH", "USDC", uint256.MustFromDecimal("2000000000000000000"), nil))
			},
			want: http.StatusUnprocessableEntity, kind: "range error",
		},
		{name: "bad amount", method: http.MethodGet, path: "/v1/peek/ETH/USDC?amount=1.5", want: http.StatusBadRequest},
		{name: "missing caller", method: http.MethodPut, path: "/v1/sources/ETH/USDC/max-age", body: map[string]string{"max_age": "1s"}, want: http.StatusBadRequest},
		{name: "stranger", method: http.MethodPut, path: "/v1/sources/ETH/USDC/max-age", caller: "0x00000000000000000000000000000000000000bb", body: map[string]string{"max_age": "1s"}, want: http.StatusForbidden, kind: "authorization error"},
		{name: "negative max age", method: http.MethodPut, path: "/v1/sources/ETH/USDC/max-age", caller: adminHex, body: map[string]string{"max_age": "-1s"}, want: http.StatusBadRequest, kind: "configuration error"},
		{name: "fractional max age", method: http.MethodPut, path: "/v1/sources/ETH/USDC/max-age", caller: adminHex, body: map[string]string{"max_age": "1500ms"}, want: http.StatusBadRequest, kind: "configuration error"},
		{name: "inverted bounds", method: http.MethodPut, path: "/v1/sources/ETH/USDC/bounds", caller: adminHex, body: map[string]string{"min": "5", "max": "5"}, want: http.StatusBadRequest, kind: "configuration error"},
		{name: "zero feed", method: http.MethodPut, path: "/v1/sources/A/B", caller: adminHex, body: map[string]any{"feed_id": ""}, want: http.StatusBadRequest, kind: "configuration error"},
		{name: "bounds on unconfigured", method: http.MethodPut, path: "/v1/sources/X/Y/bounds", caller: adminHex, body: map[string]string{"min": "1"}, want: http.StatusBadRequest, kind: "configuration error"},
	}

	for _, tc := range cases {
		if tc.prep != nil {
			tc.prep()
		}
		rec := do(t, e.handler, tc.method, tc.path, tc.caller, tc.body)
		require.Equal(t, tc.want, rec.Code, fmt.Sprintf("%s: %s", tc.name, rec.Body.String()))
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), tc.name)
		require.NotEmpty(t, body.Error, tc.name)
		require.Equal(t, tc.kind, body.Kind, tc.name)
	}
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(oracle.ErrOverflow))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(oracle.ErrCannotInvertZero))
	require.Equal(t, http.StatusGatewayTimeout, StatusFor(context.DeadlineExceeded))
	require.Equal(t, http.StatusBadGateway, StatusFor(errors.New("rpc down")))
}

func TestRecoverer(t *testing.T) {
	h := recoverer(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
