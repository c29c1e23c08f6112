package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"rateoracle/internal/oracle"
)

// HTTPOptions parameterise the REST feed client.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTP fetches rates from a REST relay of the upstream feed.
type HTTP struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTP constructs a REST feed client.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTP{
		opts:    opts,
		logger:  logger.With().Str("component", "http_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// QueryRate fetches GET {base}/feeds/{id}/rate.
func (h *HTTP) QueryRate(ctx context.Context, id oracle.FeedID) (oracle.Report, error) {
	var res rateResponse
	if err := h.getJSON(ctx, "/feeds/"+id.Hex()+"/rate", &res); err != nil {
		return oracle.Report{}, err
	}

	rate, err := uint256.FromDecimal(strings.TrimSpace(res.Rate))
	if err != nil {
		return oracle.Report{}, fmt.Errorf("parse rate %q: %w", res.Rate, err)
	}
	if res.Timestamp < 0 {
		return oracle.Report{}, errors.New("negative timestamp")
	}

	return oracle.Report{Rate: rate, UpdatedAt: time.Unix(res.Timestamp, 0).UTC()}, nil
}

// QueryReportCount fetches GET {base}/feeds/{id}/reports.
func (h *HTTP) QueryReportCount(ctx context.Context, id oracle.FeedID) (uint64, error) {
	var res reportsResponse
	if err := h.getJSON(ctx, "/feeds/"+id.Hex()+"/reports", &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (h *HTTP) getJSON(ctx context.Context, path string, out interface{}) error {
	if h.baseURL == "" {
		return errors.New("feed base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "rateoracle/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode feed response: %w", err)
	}
	h.logger.Debug().Str("path", path).Msg("feed response received")
	return nil
}

type rateResponse struct {
	Rate      string `json:"rate"`
	Timestamp int64  `json:"timestamp"`
}

type reportsResponse struct {
	Count uint64 `json:"count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ oracle.FeedClient = (*HTTP)(nil)
