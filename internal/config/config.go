package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Trading  TradingConfig  `yaml:"trading"`
	Calendar CalendarConfig `yaml:"calendar"`
	Status   StatusConfig   `yaml:"status"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type BrokerConfig struct {
	BridgeURL      string `yaml:"bridge_url"`
	AccountID      string `yaml:"account_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TradingConfig struct {
	PrepareTime         string `yaml:"prepare_time"`
	OpenTime            string `yaml:"open_time"`
	RecordTime          string `yaml:"record_time"`
	FillWaitSeconds     int    `yaml:"fill_wait_seconds"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	SplitLimit          int64  `yaml:"split_limit"`
	StarPrefix          string `yaml:"star_prefix"`
	StarSuffix          string `yaml:"star_suffix"`
}

type CalendarConfig struct {
	CacheFile         string `yaml:"cache_file"`
	APITimeoutSeconds int    `yaml:"api_timeout_seconds"`
}

type StatusConfig struct {
	File string `yaml:"file"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Broker.BridgeURL == "" {
		cfg.Broker.BridgeURL = "http://127.0.0.1:58610"
	}
	if cfg.Broker.TimeoutSeconds == 0 {
		cfg.Broker.TimeoutSeconds = 30
	}
	if cfg.Trading.PrepareTime == "" {
		cfg.Trading.PrepareTime = "09:25"
	}
	if cfg.Trading.OpenTime == "" {
		cfg.Trading.OpenTime = "09:30"
	}
	if cfg.Trading.RecordTime == "" {
		cfg.Trading.RecordTime = "15:10"
	}
	if cfg.Trading.FillWaitSeconds == 0 {
		cfg.Trading.FillWaitSeconds = 300
	}
	if cfg.Trading.PollIntervalSeconds == 0 {
		cfg.Trading.PollIntervalSeconds = 2
	}
	if cfg.Trading.SplitLimit == 0 {
		cfg.Trading.SplitLimit = 100000
	}
	if cfg.Trading.StarPrefix == "" {
		cfg.Trading.StarPrefix = "688"
	}
	if cfg.Trading.StarSuffix == "" {
		cfg.Trading.StarSuffix = ".SH"
	}
	if cfg.Calendar.CacheFile == "" {
		cfg.Calendar.CacheFile = "data/trading_calendar_cache.json"
	}
	if cfg.Calendar.APITimeoutSeconds == 0 {
		cfg.Calendar.APITimeoutSeconds = 10
	}
	if cfg.Status.File == "" {
		cfg.Status.File = "data/scheduler_status.json"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Broker.AccountID == "" {
		return fmt.Errorf("broker.account_id is required")
	}
	for _, t := range []struct {
		name, value string
	}{
		{"trading.prepare_time", c.Trading.PrepareTime},
		{"trading.open_time", c.Trading.OpenTime},
		{"trading.record_time", c.Trading.RecordTime},
	} {
		if _, _, err := ParseClock(t.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", t.name, t.value, err)
		}
	}
	if c.Trading.FillWaitSeconds < c.Trading.PollIntervalSeconds {
		return fmt.Errorf("trading.fill_wait_seconds must be >= poll_interval_seconds")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock string.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// MarketLocation returns the exchange time zone. All schedule times in the
// config are interpreted in this zone.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return loc
}

func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSeconds) * time.Second
}

func (c *Config) CalendarAPITimeout() time.Duration {
	return time.Duration(c.Calendar.APITimeoutSeconds) * time.Second
}

func (c *Config) FillWait() time.Duration {
	return time.Duration(c.Trading.FillWaitSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trading.PollIntervalSeconds) * time.Second
}
