// Package config provides configuration management for the paper trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"papertrader/internal/broker"
	"papertrader/internal/errors"
	"papertrader/internal/logging"
)

// FileName is the configuration file looked up in the default locations.
const FileName = "trading.yaml"

// Config holds all application configuration.
type Config struct {
	Tickers  []string       `mapstructure:"tickers" yaml:"tickers"`
	Broker   BrokerConfig   `mapstructure:"broker" yaml:"broker"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Producer ProducerConfig `mapstructure:"producer" yaml:"producer"`
	Consumer ConsumerConfig `mapstructure:"consumer" yaml:"consumer"`
	Journal  JournalConfig  `mapstructure:"journal" yaml:"journal"`
	Feed     FeedConfig     `mapstructure:"feed" yaml:"feed"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `mapstructure:"-" yaml:"-"`
}

// BrokerConfig holds broker selection and ledger parameters.
type BrokerConfig struct {
	Type              string  `mapstructure:"type" yaml:"type"` // mock, paper, alpaca, ibkr
	InitialCash       float64 `mapstructure:"initial_cash" yaml:"initial_cash"`
	MarginRequirement float64 `mapstructure:"margin_requirement" yaml:"margin_requirement"`
	Slippage          float64 `mapstructure:"slippage" yaml:"slippage"`
	MaxSlippage       float64 `mapstructure:"max_slippage" yaml:"max_slippage"`
	StateFile         string  `mapstructure:"state_file" yaml:"state_file"`
	AutoSave          bool    `mapstructure:"auto_save" yaml:"auto_save"`
}

// RedisConfig holds the event bus and price cache connection.
type RedisConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	Channel     string `mapstructure:"channel" yaml:"channel"`
	PricePrefix string `mapstructure:"price_prefix" yaml:"price_prefix"`
}

// ProducerConfig holds event publishing parameters.
type ProducerConfig struct {
	AlertThreshold float64 `mapstructure:"alert_threshold" yaml:"alert_threshold"` // percent
}

// ConsumerConfig holds event consumer parameters.
type ConsumerConfig struct {
	DryRun        bool    `mapstructure:"dry_run" yaml:"dry_run"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// JournalConfig holds the order journal location.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// FeedConfig throttles price provider lookups.
type FeedConfig struct {
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // lookups per second
	Retries   int     `mapstructure:"retries" yaml:"retries"`

	// Consecutive failed lookups that open the circuit, 0 to disable.
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
	File    bool   `mapstructure:"file" yaml:"file"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "papertrader")
	}
	return filepath.Join(home, ".config", "papertrader")
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Tickers: []string{"AAPL", "MSFT", "NVDA"},
		Broker: BrokerConfig{
			Type:              string(broker.TypeMock),
			InitialCash:       broker.DefaultInitialCash,
			MarginRequirement: broker.DefaultMarginRequirement,
			Slippage:          0.001,
			MaxSlippage:       broker.DefaultMaxSlippage,
			StateFile:         broker.DefaultStateFile,
		},
		Redis: RedisConfig{
			URL:         "redis://localhost:6379",
			Channel:     "trading_events",
			PricePrefix: "price:",
		},
		Producer: ProducerConfig{AlertThreshold: 2.0},
		Consumer: ConsumerConfig{MinConfidence: 50},
		Journal: JournalConfig{
			Path: filepath.Join("data", "journal.db"),
		},
		Feed: FeedConfig{RateLimit: 10, Retries: 3, BreakerThreshold: 5, BreakerCooldown: 30 * time.Second},
		Log: LogConfig{
			Level:   "info",
			Console: true,
			Path:    logging.DefaultLogConfig().FilePath,
		},
	}
}

// SearchPaths returns the locations checked when no explicit path is given.
func SearchPaths() []string {
	return []string{
		filepath.Join("config", FileName),
		FileName,
		filepath.Join(DefaultConfigDir(), FileName),
	}
}

// Load reads configuration from path, or from CONFIG_PATH, or from the first
// existing default location. Defaults are used when no file exists. An
// explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg := Default()
	if path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		cfg.Path = path
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}

// setDefaults registers every default so keys absent from the file keep
// their default values after Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("tickers", cfg.Tickers)
	v.SetDefault("broker.type", cfg.Broker.Type)
	v.SetDefault("broker.initial_cash", cfg.Broker.InitialCash)
	v.SetDefault("broker.margin_requirement", cfg.Broker.MarginRequirement)
	v.SetDefault("broker.slippage", cfg.Broker.Slippage)
	v.SetDefault("broker.max_slippage", cfg.Broker.MaxSlippage)
	v.SetDefault("broker.state_file", cfg.Broker.StateFile)
	v.SetDefault("broker.auto_save", cfg.Broker.AutoSave)
	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.channel", cfg.Redis.Channel)
	v.SetDefault("redis.price_prefix", cfg.Redis.PricePrefix)
	v.SetDefault("producer.alert_threshold", cfg.Producer.AlertThreshold)
	v.SetDefault("consumer.dry_run", cfg.Consumer.DryRun)
	v.SetDefault("consumer.min_confidence", cfg.Consumer.MinConfidence)
	v.SetDefault("journal.enabled", cfg.Journal.Enabled)
	v.SetDefault("journal.path", cfg.Journal.Path)
	v.SetDefault("feed.rate_limit", cfg.Feed.RateLimit)
	v.SetDefault("feed.retries", cfg.Feed.Retries)
	v.SetDefault("feed.breaker_threshold", cfg.Feed.BreakerThreshold)
	v.SetDefault("feed.breaker_cooldown", cfg.Feed.BreakerCooldown)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.console", cfg.Log.Console)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.path", cfg.Log.Path)
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored and existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BROKER_TYPE"); v != "" {
		cfg.Broker.Type = v
	}
	floats := []struct {
		env    string
		target *float64
	}{
		{"BROKER_INITIAL_CASH", &cfg.Broker.InitialCash},
		{"BROKER_MARGIN_REQUIREMENT", &cfg.Broker.MarginRequirement},
		{"BROKER_SLIPPAGE", &cfg.Broker.Slippage},
		{"BROKER_MAX_SLIPPAGE", &cfg.Broker.MaxSlippage},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return errors.Wrapf(errors.ErrConfigInvalid, "%s=%q is not a number", f.env, v)
		}
		*f.target = n
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Broker.InitialCash < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "broker.initial_cash must be non-negative")
	}
	if c.Broker.MarginRequirement <= 0 || c.Broker.MarginRequirement > 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "broker.margin_requirement must be in (0, 1]")
	}
	if c.Broker.Slippage < 0 || c.Broker.Slippage >= 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "broker.slippage must be in [0, 1)")
	}
	if c.Broker.MaxSlippage < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "broker.max_slippage must be non-negative")
	}
	if c.Consumer.MinConfidence < 0 || c.Consumer.MinConfidence > 100 {
		return errors.Wrap(errors.ErrConfigInvalid, "consumer.min_confidence must be between 0 and 100")
	}
	if c.Producer.AlertThreshold < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "producer.alert_threshold must be non-negative")
	}
	if c.Feed.RateLimit < 0 || c.Feed.Retries < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "feed.rate_limit and feed.retries must be non-negative")
	}
	if c.Feed.BreakerThreshold < 0 || c.Feed.BreakerCooldown < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "feed.breaker_threshold and feed.breaker_cooldown must be non-negative")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "journal.path is required when the journal is enabled")
	}
	return nil
}

// BrokerType returns the configured broker type.
func (c *Config) BrokerType() broker.Type {
	return broker.Type(c.Broker.Type)
}

// BrokerConfig converts the broker section into a paper broker configuration.
// The price provider and logger are left for the caller to attach.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		InitialCash:       c.Broker.InitialCash,
		MarginRequirement: c.Broker.MarginRequirement,
		Slippage:          c.Broker.Slippage,
		MaxSlippage:       c.Broker.MaxSlippage,
		StateFile:         c.Broker.StateFile,
		AutoSave:          c.Broker.AutoSave,
	}
}

// LogConfig converts the log section into a logging configuration.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Log.Level
	lc.Console = c.Log.Console
	lc.File = c.Log.File
	if c.Log.Path != "" {
		lc.FilePath = c.Log.Path
	}
	return lc
}
