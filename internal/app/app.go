package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rateoracle/internal/alerting"
	"rateoracle/internal/config"
	"rateoracle/internal/feed"
	"rateoracle/internal/fixedpoint"
	"rateoracle/internal/monitor"
	"rateoracle/internal/oracle"
	"rateoracle/internal/scheduler"
	"rateoracle/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; logs go to the logger.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFeed() oracle.FeedClient {
	if a.Config.Feed.Kind == config.FeedHTTP {
		return feed.NewHTTP(feed.HTTPOptions{
			BaseURL:   a.Config.Feed.HTTP.BaseURL,
			Timeout:   a.Config.Feed.HTTP.RequestTimeout,
			UserAgent: a.Config.Feed.HTTP.UserAgent,
		}, a.Logger)
	}
	return feed.NewOnChain(feed.OnChainOptions{
		RPCURL:      a.Config.Ethereum.RPCURL,
		FeedAddress: a.Config.Ethereum.FeedAddress,
		Timeout:     a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

func (a *App) newAuthorizer() oracle.Authorizer {
	return oracle.NewRoleAuthorizer(a.Config.AdminAddresses(), a.Config.GrantAddresses())
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newCooldown() (alerting.Cooldown, func(), error) {
	ttl := a.Config.Alerting.Cooldown
	if a.Config.Alerting.CooldownBackend != "redis" {
		return alerting.NewMemoryCooldown(ttl), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	closer := func() { _ = client.Close() }
	return alerting.NewRedisCooldown(client, ttl), closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openRegistry builds the source registry, hydrated from the store when one is configured.
func (a *App) openRegistry(ctx context.Context) (*oracle.Registry, *storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if closeStore == nil {
		closeStore = func() {}
	}

	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; source registry is in-memory only")
		return oracle.NewRegistry(a.newAuthorizer(), nil, a.Logger), nil, closeStore, nil
	}

	registry := oracle.NewRegistry(a.newAuthorizer(), store, a.Logger)
	if err := registry.Load(ctx); err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return registry, store, closeStore, nil
}

// Monitor executes the long-running price monitor.
func (a *App) Monitor(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, store, closeStore, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cooldown, closeCooldown, err := a.newCooldown()
	if err != nil {
		return err
	}
	if closeCooldown != nil {
		defer closeCooldown()
	}

	amount, err := fixedpoint.ParseInt(a.Config.Monitor.Amount)
	if err != nil {
		return fmt.Errorf("monitor.amount: %w", err)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		AlignToTick:  a.Config.Monitor.AlignToTick,
		StartupDelay: a.Config.Monitor.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	var locker storage.AdvisoryLocker
	if store != nil {
		locker = store
	}

	adapter := oracle.NewAdapter(registry, a.newFeed(), oracle.WithLogger(a.Logger))
	mon := monitor.New(monitor.Options{
		Pairs:         a.Config.MonitorPairs(),
		Amount:        amount,
		AlertsEnabled: a.Config.Alerting.Enabled,
		LockKey:       a.Config.Monitor.AdvisoryLockKey,
	}, sched, adapter, registry, a.newNotifier(), cooldown, locker, a.Logger)

	a.Logger.Info().Msg("starting price monitor")
	err = mon.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("price monitor stopped")
	return nil
}

// Migrate applies database schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if err := storage.RunMigrations(ctx, a.Config.Database.DSN); err != nil {
		return err
	}
	a.Logger.Info().Msg("migrations applied")
	return nil
}

func parseCaller(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--caller must be a hex address, got %q", raw)
	}
	return common.HexToAddress(raw), nil
}
