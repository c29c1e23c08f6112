// Package feed provides oracle.FeedClient implementations: an on-chain
// contract reader, a REST relay client and a deterministic in-memory feed.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"rateoracle/internal/oracle"
)

// Static serves fixed reports from memory. Every Set counts as one report.
type Static struct {
	mu      sync.RWMutex
	reports map[oracle.FeedID]oracle.Report
	counts  map[oracle.FeedID]uint64
}

// NewStatic returns an empty static feed.
func NewStatic() *Static {
	return &Static{
		reports: make(map[oracle.FeedID]oracle.Report),
		counts:  make(map[oracle.FeedID]uint64),
	}
}

// Set publishes a 24-decimal rate for id.
func (s *Static) Set(id oracle.FeedID, rate *uint256.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r *uint256.Int
	if rate != nil {
		r = rate.Clone()
	} else {
		r = new(uint256.Int)
	}
	s.reports[id] = oracle.Report{Rate: r, UpdatedAt: updatedAt}
	s.counts[id]++
}

// QueryRate returns the last published report.
func (s *Static) QueryRate(_ context.Context, id oracle.FeedID) (oracle.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return oracle.Report{}, fmt.Errorf("no report for feed %s", id.Hex())
	}
	return oracle.Report{Rate: r.Rate.Clone(), UpdatedAt: r.UpdatedAt}, nil
}

// QueryReportCount returns how many reports were published for id.
func (s *Static) QueryReportCount(_ context.Context, id oracle.FeedID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[id], nil
}

var _ oracle.FeedClient = (*Static)(nil)
