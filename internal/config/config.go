package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MarketReplay/internal/model"
)

// Data providers accepted by data_source.provider.
const (
	ProviderMock         = "mock"
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
	ProviderParquet      = "parquet"
)

// Slot is the initial content of one chart slot.
type Slot struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
}

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Replay struct {
		BaseTickMS              int     `yaml:"base_tick_ms"`
		Speed                   float64 `yaml:"speed"`
		Date                    string  `yaml:"date"`
		PersistAcrossTimeframes bool    `yaml:"persist_across_timeframes"`
		Primary                 Slot    `yaml:"primary"`
		Secondary               Slot    `yaml:"secondary"`
	} `yaml:"replay"`
	Ledger struct {
		InitialCash   float64 `yaml:"initial_cash"`
		ResetInterval string  `yaml:"reset_interval"`
	} `yaml:"ledger"`
	DataSource struct {
		Provider string `yaml:"provider"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		DataDir  string `yaml:"data_dir"`
		Timezone string `yaml:"timezone"`
		Seed     int64  `yaml:"seed"`
	} `yaml:"data_source"`
	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`
	Journal struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"journal"`
	Schedule struct {
		SnapshotCron string `yaml:"snapshot_cron"`
		ExportCron   string `yaml:"export_cron"`
		ExportDir    string `yaml:"export_dir"`
		ExportFormat string `yaml:"export_format"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file and a .env file, then applies environment
// variable overrides and defaults. Both files are optional.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the process environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Environment variable overrides
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Replay.Date, "REPLAY_DATE")
	setString(&cfg.DataSource.Provider, "DATA_PROVIDER")
	setString(&cfg.DataSource.BaseURL, "ALPHAVANTAGE_BASE_URL")
	setString(&cfg.DataSource.APIKey, "ALPHAVANTAGE_API_KEY")
	setString(&cfg.DataSource.DataDir, "DATA_DIR")
	setString(&cfg.DataSource.Timezone, "REPLAY_TIMEZONE")
	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.Path, "STORAGE_PATH")
	setString(&cfg.Storage.DSN, "STORAGE_DSN")
	setString(&cfg.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Storage.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Journal.Driver, "JOURNAL_DRIVER")
	setString(&cfg.Journal.DSN, "JOURNAL_DSN")
	setString(&cfg.Schedule.ExportDir, "EXPORT_DIR")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Proxy, "HTTPS_PROXY")
	if v := os.Getenv("INITIAL_CASH"); v != "" {
		if cash, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ledger.InitialCash = cash
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Replay.BaseTickMS == 0 {
		c.Replay.BaseTickMS = 1000
	}
	if c.Replay.Speed == 0 {
		c.Replay.Speed = 1
	}
	if c.Replay.Primary.Symbol == "" {
		c.Replay.Primary.Symbol = "AAPL"
	}
	if c.Replay.Primary.Timeframe == "" {
		c.Replay.Primary.Timeframe = "1m"
	}
	if c.Replay.Secondary.Symbol == "" {
		c.Replay.Secondary.Symbol = "TSLA"
	}
	if c.Replay.Secondary.Timeframe == "" {
		c.Replay.Secondary.Timeframe = "2m"
	}
	if c.Ledger.InitialCash == 0 {
		c.Ledger.InitialCash = 10000
	}
	if c.Ledger.ResetInterval == "" {
		c.Ledger.ResetInterval = "24h"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = ProviderMock
		if c.DataSource.APIKey != "" {
			c.DataSource.Provider = ProviderAlphaVantage
		}
	}
	if c.DataSource.DataDir == "" {
		c.DataSource.DataDir = "data/bars"
	}
	if c.DataSource.Timezone == "" {
		c.DataSource.Timezone = "America/New_York"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.Path = "data/state.db"
		default:
			c.Storage.Path = "data/state"
		}
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "sqlite"
	}
	if c.Journal.DSN == "" && c.Journal.Driver == "sqlite" {
		c.Journal.DSN = "data/journal.db"
	}
	if c.Schedule.SnapshotCron == "" {
		c.Schedule.SnapshotCron = "0 */5 * * * *"
	}
	if c.Schedule.ExportCron == "" {
		c.Schedule.ExportCron = "0 0 17 * * 1-5"
	}
	if c.Schedule.ExportDir == "" {
		c.Schedule.ExportDir = "data/exports"
	}
	if c.Schedule.ExportFormat == "" {
		c.Schedule.ExportFormat = "parquet"
	}
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if c.Replay.BaseTickMS <= 0 {
		return fmt.Errorf("replay.base_tick_ms must be positive")
	}
	if c.Replay.Speed <= 0 {
		return fmt.Errorf("replay.speed must be positive")
	}
	for name, slot := range map[string]Slot{"primary": c.Replay.Primary, "secondary": c.Replay.Secondary} {
		if _, err := model.ParseTimeframe(slot.Timeframe); err != nil {
			return fmt.Errorf("replay.%s.timeframe: %w", name, err)
		}
	}
	if c.Replay.Date != "" {
		if _, err := time.Parse("2006-01-02", c.Replay.Date); err != nil {
			return fmt.Errorf("replay.date must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Ledger.InitialCash <= 0 {
		return fmt.Errorf("ledger.initial_cash must be positive")
	}
	if d, err := time.ParseDuration(c.Ledger.ResetInterval); err != nil || d <= 0 {
		return fmt.Errorf("ledger.reset_interval %q must be a positive duration", c.Ledger.ResetInterval)
	}
	if _, err := time.LoadLocation(c.DataSource.Timezone); err != nil {
		return fmt.Errorf("data_source.timezone: %w", err)
	}
	switch c.DataSource.Provider {
	case ProviderMock, ProviderYahoo:
	case ProviderAlphaVantage:
		if c.DataSource.APIKey == "" {
			return fmt.Errorf("data_source.api_key is required for alphavantage")
		}
	case ProviderParquet:
		if c.DataSource.DataDir == "" {
			return fmt.Errorf("data_source.data_dir is required for parquet")
		}
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	switch c.Storage.Driver {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	switch c.Journal.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for %s", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver %q is not supported", c.Journal.Driver)
	}
	switch strings.ToLower(c.Schedule.ExportFormat) {
	case "csv", "json", "parquet":
	default:
		return fmt.Errorf("schedule.export_format %q must be csv, json or parquet", c.Schedule.ExportFormat)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}

// Location returns the exchange time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.DataSource.Timezone)
}

// ResetEvery returns the ledger reset period.
func (c *Config) ResetEvery() time.Duration {
	d, _ := time.ParseDuration(c.Ledger.ResetInterval)
	return d
}

// BaseTick returns the playback cadence at 1x.
func (c *Config) BaseTick() time.Duration {
	return time.Duration(c.Replay.BaseTickMS) * time.Millisecond
}

// ReplayDay returns the configured day in loc, or today when none is set.
func (c *Config) ReplayDay(now time.Time, loc *time.Location) time.Time {
	if c.Replay.Date != "" {
		if d, err := time.ParseInLocation("2006-01-02", c.Replay.Date, loc); err == nil {
			return d
		}
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}
