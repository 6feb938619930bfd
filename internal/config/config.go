package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the backtest engine and its cmd/ entrypoint
// read at startup. Grounded on the teacher's Load/setDefaults/Validate
// shape, trimmed to the sections this spec's components actually consume
// (database/redis back the candle cache, engine holds the run-loop knobs;
// the teacher's trading/risk/LLM/MCP/NATS sections have no SPEC_FULL.md
// component and are dropped, see DESIGN.md).
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// DatabaseConfig holds the Postgres connection settings for the persistent
// candle cache store (spec §4.7, §6 cache schema).
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GetDSN returns the PostgreSQL connection string.
func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.PoolSize,
	)
}

// RedisConfig holds the read-through hot-range cache settings in front of
// the Postgres candle store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl_seconds"`
}

// GetAddr returns the Redis address.
func (c RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExchangeConfig holds the live-exchange client settings used by the
// cached data provider's fetch path (spec §6 Exchange OHLCV fetch).
type ExchangeConfig struct {
	APIKey       string `mapstructure:"api_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Testnet      bool   `mapstructure:"testnet"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`    // default 30000 (spec §5)
	PageSize     int    `mapstructure:"page_size"`     // default 200 (spec §4.7)
	PacingMs     int    `mapstructure:"pacing_ms"`     // default 100 (spec §4.7 "wait >=100ms")
}

// GetTimeout returns the exchange client timeout as a time.Duration.
func (c ExchangeConfig) GetTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// GetPacing returns the inter-page pacing delay as a time.Duration.
func (c ExchangeConfig) GetPacing() time.Duration {
	if c.PacingMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.PacingMs) * time.Millisecond
}

// EngineConfig holds the run-loop knobs the backtest engine reads at
// startup (spec §9 open question 4: progress cadence as a config knob).
type EngineConfig struct {
	ProgressEveryNCandles int `mapstructure:"progress_every_n_candles"`
	DefaultATRPeriod      int `mapstructure:"default_atr_period"`
	CacheFlushThreshold   int `mapstructure:"cache_flush_threshold"` // spec §4.7 step 3, default 1000
}

// Load reads configuration from configPath (or ./configs/config.yaml, then
// ./config.yaml) with BACKTEST_-prefixed environment variable overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("BACKTEST")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the minimal invariants Load relies on.
func (c Config) Validate() error {
	if c.Database.PoolSize < 0 {
		return fmt.Errorf("config: database.pool_size must be >= 0")
	}
	if c.Engine.ProgressEveryNCandles < 0 {
		return fmt.Errorf("config: engine.progress_every_n_candles must be >= 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backtester")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "backtester")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_seconds", 300)

	v.SetDefault("exchange.testnet", true)
	v.SetDefault("exchange.timeout_ms", 30_000)
	v.SetDefault("exchange.page_size", 200)
	v.SetDefault("exchange.pacing_ms", 100)

	v.SetDefault("engine.progress_every_n_candles", 100)
	v.SetDefault("engine.default_atr_period", 14)
	v.SetDefault("engine.cache_flush_threshold", 1000)
}
