package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tradewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ExchangeConfig covers Binance REST access.
type ExchangeConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	DefaultCandleLimit int           `mapstructure:"default_candle_limit"`
	MaxPages           int           `mapstructure:"max_pages"`
}

// SimulatorConfig seeds the fallback price walk.
type SimulatorConfig struct {
	Seed       uint64             `mapstructure:"seed"`
	BasePrices map[string]float64 `mapstructure:"base_prices"`
}

// AlertingConfig drives the evaluation loop.
type AlertingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DiscordConfig 描述 Discord webhook 参数。
type DiscordConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SuppressWindow time.Duration `mapstructure:"suppress_window"`
	Retention      time.Duration `mapstructure:"retention"`
}

// StreamConfig tunes the per-symbol WebSocket pollers.
type StreamConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the trigger history.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxCandles int `mapstructure:"max_candles"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("TRADEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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

// loadDotEnv populates the process environment from path without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bindLegacyEnv keeps the unprefixed variable names working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"discord.webhook_url": {"TRADEWATCH_DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK_URL"},
		"exchange.api_key":    {"TRADEWATCH_EXCHANGE_API_KEY", "BINANCE_API_KEY"},
		"server.port":         {"TRADEWATCH_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
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
	v.SetDefault("app.name", "tradewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 28)

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("exchange.base_url", "https://api.binance.com")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.requests_per_second", 10.0)
	v.SetDefault("exchange.burst", 20)
	v.SetDefault("exchange.default_candle_limit", 5000)
	v.SetDefault("exchange.max_pages", 5)

	v.SetDefault("simulator.seed", 0)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.poll_interval", "10s")

	v.SetDefault("discord.request_timeout", "10s")
	v.SetDefault("discord.suppress_window", "5s")
	v.SetDefault("discord.retention", "30s")

	v.SetDefault("stream.poll_interval", "1s")
	v.SetDefault("stream.error_backoff", "5s")
	v.SetDefault("stream.write_timeout", "5s")

	v.SetDefault("export.max_candles", 5000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
// A missing webhook URL is allowed; sends then fail with a clear error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url 必须配置")
	}
	if c.Exchange.DefaultCandleLimit <= 0 {
		return fmt.Errorf("exchange.default_candle_limit must be greater than zero")
	}
	if c.Exchange.MaxPages <= 0 {
		return fmt.Errorf("exchange.max_pages must be greater than zero")
	}
	if c.Exchange.RequestsPerSecond < 0 {
		return fmt.Errorf("exchange.requests_per_second cannot be negative")
	}
	if c.Alerting.PollInterval <= 0 {
		return fmt.Errorf("alerting.poll_interval must be greater than zero")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be greater than zero")
	}
	if c.Discord.SuppressWindow < 0 || c.Discord.Retention < 0 {
		return fmt.Errorf("discord suppression windows cannot be negative")
	}
	if c.Export.MaxCandles <= 0 {
		return fmt.Errorf("export.max_candles must be greater than zero")
	}
	for symbol, price := range c.Simulator.BasePrices {
		if price <= 0 {
			return fmt.Errorf("simulator.base_prices.%s must be positive", symbol)
		}
	}
	return nil
}

// ResolveCandleLimit returns either the CLI override or config default.
func (c *Config) ResolveCandleLimit(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxCandles
}

// BasePrices returns configured seeds with symbols upper-cased. Viper lowers
// map keys, so they are normalised here.
func (c *Config) BasePrices() map[string]float64 {
	if len(c.Simulator.BasePrices) == 0 {
		return nil
	}
	out := make(map[string]float64, len(c.Simulator.BasePrices))
	for symbol, price := range c.Simulator.BasePrices {
		out[strings.ToUpper(symbol)] = price
	}
	return out
}
