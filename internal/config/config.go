package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names.
const (
	ProviderFinnhub   = "finnhub"
	ProviderYahoo     = "yahoo"
	ProviderSynthetic = "synthetic"
)

// DefaultRelays are the CORS relays tried after a direct Yahoo request.
var DefaultRelays = []string{
	"https://corsproxy.io/?url={url}",
	"https://api.allorigins.win/raw?url={url}",
}

// Config holds all application configuration.
type Config struct {
	Provider struct {
		Name           string        `yaml:"name"`
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		Relays         []string      `yaml:"relays"`
		Timeout        time.Duration `yaml:"timeout"`
		CallsPerMinute int           `yaml:"calls_per_minute"`
	} `yaml:"provider"`
	Batch struct {
		Size  int           `yaml:"size"`
		Delay time.Duration `yaml:"delay"`
	} `yaml:"batch"`
	Cache struct {
		QuoteTTL time.Duration `yaml:"quote_ttl"`
		ChartTTL time.Duration `yaml:"chart_ttl"`
	} `yaml:"cache"`
	Synthetic struct {
		Enabled      bool  `yaml:"enabled"`
		ReprobeEvery int   `yaml:"reprobe_every"`
		Seed         int64 `yaml:"seed"`
	} `yaml:"synthetic"`
	Schedule struct {
		RefreshCron     string `yaml:"refresh_cron"`
		MarketHoursOnly bool   `yaml:"market_hours_only"`
		RunOnStart      bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy    string `yaml:"proxy"`
	LogLevel string `yaml:"log_level"`
}

// newDefault returns the values used when neither the file nor the environment sets a key.
// Batch delay and chart TTL are derived after loading.
func newDefault() *Config {
	cfg := &Config{}
	cfg.Provider.Timeout = 8 * time.Second
	cfg.Batch.Size = 10
	cfg.Cache.QuoteTTL = time.Minute
	cfg.Synthetic.ReprobeEvery = 3
	cfg.Synthetic.Seed = 1
	cfg.Schedule.RefreshCron = "0 */5 * * * *"
	cfg.Schedule.RunOnStart = true
	cfg.HTTP.Addr = ":8080"
	cfg.Database.SQLitePath = "data/heatmap.db"
	cfg.LogLevel = "info"
	return cfg
}

// Load reads config from a YAML file, then a .env file if present, then
// applies environment variable overrides and derived defaults.
func Load(path string) (*Config, error) {
	cfg := newDefault()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load() // .env is optional

	// Environment variable overrides
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("REFRESH_CRON"); v != "" {
		cfg.Schedule.RefreshCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Schedule.RunOnStart = b
		}
	}

	cfg.applyProviderDefaults()
	return cfg, nil
}

func (c *Config) applyProviderDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderYahoo
		if c.Provider.APIKey != "" {
			c.Provider.Name = ProviderFinnhub
		}
	}
	switch c.Provider.Name {
	case ProviderFinnhub:
		if c.Provider.BaseURL == "" {
			c.Provider.BaseURL = "https://finnhub.io/api/v1"
		}
		if c.Provider.CallsPerMinute == 0 {
			c.Provider.CallsPerMinute = 60
		}
	case ProviderYahoo:
		if c.Provider.Relays == nil {
			c.Provider.Relays = DefaultRelays
		}
	}
	if c.Cache.ChartTTL == 0 {
		c.Cache.ChartTTL = 5 * c.Cache.QuoteTTL
	}
	if c.Batch.Delay == 0 {
		c.Batch.Delay = c.minBatchDelay()
		if c.Batch.Delay == 0 {
			c.Batch.Delay = time.Second
		}
	}
}

// minBatchDelay is the smallest delay between batches that keeps a full
// batch every delay within CallsPerMinute. Zero when there is no limit.
func (c *Config) minBatchDelay() time.Duration {
	if c.Provider.CallsPerMinute <= 0 || c.Batch.Size <= 0 {
		return 0
	}
	perCall := time.Minute / time.Duration(c.Provider.CallsPerMinute)
	return time.Duration(c.Batch.Size) * perCall
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderFinnhub:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for finnhub")
		}
	case ProviderYahoo, ProviderSynthetic:
	default:
		return fmt.Errorf("provider.name %q is not one of finnhub, yahoo, synthetic", c.Provider.Name)
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be positive")
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("batch.delay must not be negative")
	}
	if need := c.minBatchDelay(); c.Batch.Delay < need {
		return fmt.Errorf("batch.delay %v is too short for %d calls per minute with batch.size %d (need at least %v)",
			c.Batch.Delay, c.Provider.CallsPerMinute, c.Batch.Size, need)
	}
	if c.Cache.QuoteTTL <= 0 {
		return fmt.Errorf("cache.quote_ttl must be positive")
	}
	if c.Synthetic.ReprobeEvery < 0 {
		return fmt.Errorf("synthetic.reprobe_every must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether Telegram credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
