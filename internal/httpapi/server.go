// Package httpapi exposes the rate oracle over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"rateoracle/internal/fixedpoint"
	"rateoracle/internal/oracle"
)

// CallerHeader carries the address an admin request acts as.
const CallerHeader = "X-Caller"

// Registry is the part of the source registry the API serves.
type Registry interface {
	SetSource(ctx context.Context, caller common.Address, base, quote oracle.AssetID, baseDecimals, quoteDecimals uint8, feedID oracle.FeedID, inverse bool) error
	SetMaxAge(ctx context.Context, caller common.Address, base, quote oracle.AssetID, maxAge time.Duration) error
	SetBounds(ctx context.Context, caller common.Address, base, quote oracle.AssetID, minPrice, maxPrice *uint256.Int) error
	Lookup(ctx context.Context, base, quote oracle.AssetID) (oracle.Source, bool, error)
}

// Pricer is the pricing adapter.
type Pricer interface {
	Peek(ctx context.Context, base, quote oracle.AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error)
	Get(ctx context.Context, base, quote oracle.AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error)
}

// Server implements the HTTP handlers.
type Server struct {
	registry Registry
	pricer   Pricer
	ping     func(context.Context) error
	logger   zerolog.Logger
}

// NewServer builds a Server. ping may be nil when no store backs the registry.
func NewServer(registry Registry, pricer Pricer, ping func(context.Context) error, logger zerolog.Logger) *Server {
	return &Server{
		registry: registry,
		pricer:   pricer,
		ping:     ping,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

type priceResponse struct {
	Value        string    `json:"value"`
	ValueDecimal string    `json:"value_decimal"`
	UpdateTime   time.Time `json:"update_time"`
}

type sourceResponse struct {
	Base          string  `json:"base"`
	Quote         string  `json:"quote"`
	Configured    bool    `json:"configured"`
	HasStaleness  bool    `json:"has_staleness"`
	HasBounds     bool    `json:"has_bounds"`
	FeedID        string  `json:"feed_id,omitempty"`
	BaseDecimals  *uint8  `json:"base_decimals,omitempty"`
	QuoteDecimals *uint8  `json:"quote_decimals,omitempty"`
	Inverse       bool    `json:"inverse"`
	MaxAge        string  `json:"max_age,omitempty"`
	MinPrice      *string `json:"min_price,omitempty"`
	MaxPrice      *string `json:"max_price,omitempty"`
}

type setSourceRequest struct {
	FeedID        string `json:"feed_id"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	Inverse       bool   `json:"inverse"`
}

type setMaxAgeRequest struct {
	MaxAge string `json:"max_age"`
}

type setBoundsRequest struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	s.servePrice(w, r, s.pricer.Peek)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.servePrice(w, r, s.pricer.Get)
}

type priceFunc func(ctx context.Context, base, quote oracle.AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error)

func (s *Server) servePrice(w http.ResponseWriter, r *http.Request, fn priceFunc) {
	base, quote := pairParams(r)

	amount := fixedpoint.Unit()
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		parsed, err := fixedpoint.ParseInt(raw)
		if err != nil {
			badRequest(w, "invalid amount: "+err.Error())
			return
		}
		amount = parsed
	}

	value, updatedAt, err := fn(r.Context(), base, quote, amount)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Value:        value.Dec(),
		ValueDecimal: fixedpoint.Format(value, fixedpoint.Decimals),
		UpdateTime:   updatedAt.UTC(),
	})
}

func (s *Server) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	base, quote := pairParams(r)
	s.writeSource(w, r, base, quote)
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	base, quote := pairParams(r)
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var body setSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	feedID, err := oracle.ParseFeedID(body.FeedID)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := s.registry.SetSource(r.Context(), caller, base, quote, body.BaseDecimals, body.QuoteDecimals, feedID, body.Inverse); err != nil {
		s.writeOracleError(w, err)
		return
	}
	s.writeSource(w, r, base, quote)
}

func (s *Server) handleSetMaxAge(w http.ResponseWriter, r *http.Request) {
	base, quote := pairParams(r)
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var body setMaxAgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	maxAge, err := time.ParseDuration(strings.TrimSpace(body.MaxAge))
	if err != nil {
		badRequest(w, "invalid max_age: "+err.Error())
		return
	}

	if err := s.registry.SetMaxAge(r.Context(), caller, base, quote, maxAge); err != nil {
		s.writeOracleError(w, err)
		return
	}
	s.writeSource(w, r, base, quote)
}

func (s *Server) handleSetBounds(w http.ResponseWriter, r *http.Request) {
	base, quote := pairParams(r)
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var body setBoundsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	minPrice, err := optionalInt(body.Min)
	if err != nil {
		badRequest(w, "invalid min: "+err.Error())
		return
	}
	maxPrice, err := optionalInt(body.Max)
	if err != nil {
		badRequest(w, "invalid max: "+err.Error())
		return
	}

	if err := s.registry.SetBounds(r.Context(), caller, base, quote, minPrice, maxPrice); err != nil {
		s.writeOracleError(w, err)
		return
	}
	s.writeSource(w, r, base, quote)
}

func (s *Server) writeSource(w http.ResponseWriter, r *http.Request, base, quote oracle.AssetID) {
	src, ok, err := s.registry.Lookup(r.Context(), base, quote)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(base, quote, src, ok))
}

func describe(base, quote oracle.AssetID, src oracle.Source, ok bool) sourceResponse {
	resp := sourceResponse{Base: string(base), Quote: string(quote)}
	if !ok {
		return resp
	}

	status := src.Status()
	resp.Configured = status.Configured
	resp.HasStaleness = status.HasStaleness
	resp.HasBounds = status.HasBounds

	baseDec, quoteDec := src.BaseDecimals, src.QuoteDecimals
	minPrice, maxPrice := src.MinPrice.Dec(), src.MaxPrice.Dec()
	resp.FeedID = src.FeedID.Hex()
	resp.BaseDecimals = &baseDec
	resp.QuoteDecimals = &quoteDec
	resp.Inverse = src.Inverse
	resp.MinPrice = &minPrice
	resp.MaxPrice = &maxPrice
	if src.MaxAge > 0 {
		resp.MaxAge = src.MaxAge.String()
	}
	return resp
}

func (s *Server) writeOracleError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := ""
	if k := oracle.KindOf(err); k != nil {
		kind = k.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error(), kind)
}

// StatusFor maps oracle errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, oracle.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, oracle.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, oracle.ErrFreshness):
		return http.StatusServiceUnavailable
	case errors.Is(err, oracle.ErrRange), errors.Is(err, oracle.ErrArithmetic):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrMarketData):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// feed transport failures carry no kind
		return http.StatusBadGateway
	}
}

func pairParams(r *http.Request) (oracle.AssetID, oracle.AssetID) {
	return oracle.AssetID(chi.URLParam(r, "base")), oracle.AssetID(chi.URLParam(r, "quote"))
}

func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if !common.IsHexAddress(raw) {
		badRequest(w, CallerHeader+" header must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func optionalInt(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	return fixedpoint.ParseInt(raw)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg, "")
}
