// Package monitor periodically prices watched pairs and alerts when the
// pipeline rejects them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"rateoracle/internal/alerting"
	"rateoracle/internal/fixedpoint"
	"rateoracle/internal/oracle"
	"rateoracle/internal/scheduler"
	"rateoracle/internal/storage"
)

// Pricer is the read side of the pricing adapter.
type Pricer interface {
	Peek(ctx context.Context, base, quote oracle.AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error)
}

// Sources lists configured pairs.
type Sources interface {
	Pairs() []oracle.Pair
	Source(base, quote oracle.AssetID) (oracle.Source, bool)
}

// Reloader is implemented by sources that cache durable configuration.
type Reloader interface {
	Load(ctx context.Context) error
}

// Options tune a Monitor.
type Options struct {
	// Pairs to watch; empty means every configured pair.
	Pairs []oracle.Pair
	// Amount is the 18-decimal base amount priced each round.
	Amount        *uint256.Int
	AlertsEnabled bool
	LockKey       int64
}

// Result is the outcome for one pair in one round.
type Result struct {
	Pair      oracle.Pair
	Value     *uint256.Int
	UpdatedAt time.Time
	Err       error
}

// Monitor orchestrates pricing rounds, logging and alerting.
type Monitor struct {
	scheduler *scheduler.Scheduler
	pricer    Pricer
	sources   Sources
	notifier  alerting.Notifier
	cooldown  alerting.Cooldown
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger
	opts      Options
}

// New constructs the price monitor. notifier, cooldown and locker may be nil.
func New(opts Options, sched *scheduler.Scheduler, pricer Pricer, sources Sources, notifier alerting.Notifier, cooldown alerting.Cooldown, locker storage.AdvisoryLocker, logger zerolog.Logger) *Monitor {
	if opts.Amount == nil {
		opts.Amount = fixedpoint.Unit()
	}
	return &Monitor{
		scheduler: sched,
		pricer:    pricer,
		sources:   sources,
		notifier:  notifier,
		cooldown:  cooldown,
		locker:    locker,
		logger:    logger.With().Str("component", "monitor").Logger(),
		opts:      opts,
	}
}

// Run begins the scheduled monitoring loop.
func (m *Monitor) Run(ctx context.Context) error {
	if m.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return m.scheduler.Run(ctx, func(ctx context.Context, tick time.Time) error {
		_, err := m.ProcessTick(ctx, tick)
		return err
	})
}

// ProcessTick runs one round unless another replica holds the advisory lock.
func (m *Monitor) ProcessTick(ctx context.Context, tick time.Time) ([]Result, error) {
	unlock, proceed, err := m.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		m.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return m.Round(ctx, tick)
}

// Round prices every watched pair once. The error joins every rejection.
func (m *Monitor) Round(ctx context.Context, tick time.Time) ([]Result, error) {
	if r, ok := m.sources.(Reloader); ok {
		// 其他进程可能已修改配置
		if err := r.Load(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("reload sources failed; using cached configuration")
		}
	}

	pairs := m.opts.Pairs
	if len(pairs) == 0 && m.sources != nil {
		pairs = m.sources.Pairs()
	}

	results := make([]Result, 0, len(pairs))
	var errs []error
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		value, updatedAt, err := m.pricer.Peek(ctx, pair.Base, pair.Quote, m.opts.Amount)
		results = append(results, Result{Pair: pair, Value: value, UpdatedAt: updatedAt, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair, err))
			m.logger.Warn().Err(err).Time("tick", tick).Str("pair", pair.String()).Str("kind", KindName(err)).Msg("price rejected")
			m.alert(ctx, tick, pair, err)
			continue
		}

		m.logger.Info().Time("tick", tick).
			Str("pair", pair.String()).
			Str("value", fixedpoint.Format(value, fixedpoint.Decimals)).
			Time("update_time", updatedAt).
			Msg("price accepted")
	}

	return results, errors.Join(errs...)
}

func (m *Monitor) alert(ctx context.Context, tick time.Time, pair oracle.Pair, cause error) {
	if !m.opts.AlertsEnabled || m.notifier == nil {
		return
	}

	note := alerting.Notification{
		Tick:   tick,
		Pair:   pair.String(),
		Kind:   KindName(cause),
		Reason: cause.Error(),
		Amount: fixedpoint.Format(m.opts.Amount, fixedpoint.Decimals),
	}
	if m.sources != nil {
		if src, ok := m.sources.Source(pair.Base, pair.Quote); ok && src.Configured() {
			note.FeedID = src.FeedID.Hex()
		}
	}

	if m.cooldown != nil {
		allowed, err := m.cooldown.Allow(ctx, note.Key())
		if err != nil {
			// fail open: a broken cooldown store should not swallow alerts
			m.logger.Error().Err(err).Str("pair", note.Pair).Msg("cooldown check failed")
		} else if !allowed {
			m.logger.Debug().Str("pair", note.Pair).Str("kind", note.Kind).Msg("alert suppressed by cooldown")
			return
		}
	}

	if err := m.notifier.Notify(ctx, note); err != nil {
		m.logger.Error().Err(err).Str("pair", note.Pair).Msg("failed to dispatch alert")
	}
}

func (m *Monitor) acquireLock(ctx context.Context) (func(), bool, error) {
	if m.opts.LockKey == 0 || m.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.locker.TryAdvisoryLock(ctx, m.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// KindName names err's category for logs and alerts.
func KindName(err error) string {
	if kind := oracle.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "feed error"
}
