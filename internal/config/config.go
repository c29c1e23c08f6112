package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rateoracle/internal/logging"
	"rateoracle/internal/oracle"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN keeps the registry in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EthereumConfig covers on-chain feed access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	FeedAddress    string        `mapstructure:"feed_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Feed kinds.
const (
	FeedOnChain = "onchain"
	FeedHTTP    = "http"
)

// FeedConfig selects and configures the upstream rate feed.
type FeedConfig struct {
	Kind string         `mapstructure:"kind"`
	HTTP HTTPFeedConfig `mapstructure:"http"`
}

// HTTPFeedConfig captures the REST feed relay.
type HTTPFeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AuthConfig lists callers allowed to mutate the registry.
type AuthConfig struct {
	Admins []string            `mapstructure:"admins"`
	Grants map[string][]string `mapstructure:"grants"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MonitorConfig governs the price monitor cadence.
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToTick     bool          `mapstructure:"align_to_tick"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	// Pairs are "BASE/QUOTE"; empty watches every configured pair.
	Pairs []string `mapstructure:"pairs"`
	// Amount is the 18-decimal base amount priced on every tick.
	Amount string `mapstructure:"amount"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Cooldown        time.Duration  `mapstructure:"cooldown"`
	CooldownBackend string         `mapstructure:"cooldown_backend"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RedisConfig 用于告警冷却的 redis 连接。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("RATEORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rateoracle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("ethereum.rpc_url", "")
	v.SetDefault("ethereum.feed_address", "")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("feed.kind", FeedOnChain)
	v.SetDefault("feed.http.base_url", "")
	v.SetDefault("feed.http.request_timeout", "10s")
	v.SetDefault("feed.http.user_agent", "rateoracle/1.0")

	v.SetDefault("auth.admins", []string{})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.align_to_tick", true)
	v.SetDefault("monitor.advisory_lock_key", int64(0x6f72636c))
	v.SetDefault("monitor.startup_delay", "0s")
	v.SetDefault("monitor.pairs", []string{})
	v.SetDefault("monitor.amount", "1000000000000000000")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.cooldown_backend", "memory")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Feed.Kind {
	case FeedOnChain, FeedHTTP:
	default:
		return fmt.Errorf("feed.kind must be %q or %q", FeedOnChain, FeedHTTP)
	}
	if c.Ethereum.FeedAddress != "" && !common.IsHexAddress(c.Ethereum.FeedAddress) {
		return fmt.Errorf("ethereum.feed_address is not a valid address")
	}

	for _, admin := range c.Auth.Admins {
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("auth.admins: invalid address %q", admin)
		}
	}
	for op, callers := range c.Auth.Grants {
		if _, ok := lookupOperation(op); !ok {
			return fmt.Errorf("auth.grants: unknown operation %q", op)
		}
		for _, caller := range callers {
			if !common.IsHexAddress(caller) {
				return fmt.Errorf("auth.grants.%s: invalid address %q", op, caller)
			}
		}
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	for _, p := range c.Monitor.Pairs {
		if _, err := oracle.ParsePair(p); err != nil {
			return fmt.Errorf("monitor.pairs: %w", err)
		}
	}

	switch c.Alerting.CooldownBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when alerting.cooldown_backend is redis")
		}
	default:
		return fmt.Errorf("alerting.cooldown_backend must be memory or redis")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// AdminAddresses returns the parsed auth.admins list.
func (c *Config) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Auth.Admins))
	for _, a := range c.Auth.Admins {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

// GrantAddresses returns auth.grants keyed by operation.
func (c *Config) GrantAddresses() map[oracle.Operation][]common.Address {
	out := make(map[oracle.Operation][]common.Address, len(c.Auth.Grants))
	for key, callers := range c.Auth.Grants {
		op, ok := lookupOperation(key)
		if !ok {
			continue
		}
		for _, caller := range callers {
			out[op] = append(out[op], common.HexToAddress(caller))
		}
	}
	return out
}

// MonitorPairs returns the parsed monitor.pairs list.
func (c *Config) MonitorPairs() []oracle.Pair {
	out := make([]oracle.Pair, 0, len(c.Monitor.Pairs))
	for _, p := range c.Monitor.Pairs {
		if pair, err := oracle.ParsePair(p); err == nil {
			out = append(out, pair)
		}
	}
	return out
}

// viper lowercases map keys, so operations match case-insensitively.
func lookupOperation(key string) (oracle.Operation, bool) {
	for _, known := range oracle.Operations {
		if strings.EqualFold(string(known), key) {
			return known, true
		}
	}
	return "", false
}
