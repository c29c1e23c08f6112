package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToTick: true}, zerolog.Nop())

	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一个 tick 错误: %s", got)
	}
	exact := time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)
	if got := s.nextTick(exact); !got.Equal(exact.Add(time.Minute)) {
		t.Fatalf("整点时应跳到下一个周期: %s", got)
	}
	if got := s.tickStart(now); !got.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("tickStart 错误: %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("未对齐时应为 now+interval: %s", got)
	}
	if got := s.tickStart(now); !got.Equal(now) {
		t.Fatal("未对齐时 tickStart 应原样返回")
	}
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, tick time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("tick errors do not stop the loop")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler 未按时退出")
	}
	if calls.Load() < 3 {
		t.Fatalf("tick 次数不足: %d", calls.Load())
	}
}

func TestRunStartupDelayRespectsCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("启动延迟期间取消应立即返回: %v", err)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("interval 为 0 时应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
