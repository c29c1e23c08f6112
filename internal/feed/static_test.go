package feed

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"rateoracle/internal/oracle"
)

func TestStaticFeed(t *testing.T) {
	s := NewStatic()
	id := oracle.FeedID{9}
	ctx := context.Background()

	if _, err := s.QueryRate(ctx, id); err == nil {
		t.Fatal("未发布的 feed 应报错")
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rate := uint256.NewInt(5)
	s.Set(id, rate, now)
	rate.SetUint64(6)
	s.Set(id, nil, now.Add(time.Minute))
	s.Set(id, uint256.NewInt(7), now.Add(2*time.Minute))

	report, err := s.QueryRate(ctx, id)
	if err != nil || report.Rate.Uint64() != 7 || !report.UpdatedAt.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("应返回最后一次发布: %+v %v", report, err)
	}
	report.Rate.SetUint64(100)
	again, _ := s.QueryRate(ctx, id)
	if again.Rate.Uint64() != 7 {
		t.Fatal("返回值不应共享内部状态")
	}

	count, _ := s.QueryReportCount(ctx, id)
	if count != 3 {
		t.Fatalf("report count 应为 3, 实际 %d", count)
	}
}
