package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_ADDR", "REPLAY_DATE", "DATA_PROVIDER", "ALPHAVANTAGE_BASE_URL", "ALPHAVANTAGE_API_KEY",
	"DATA_DIR", "REPLAY_TIMEZONE", "STORAGE_DRIVER", "STORAGE_PATH", "STORAGE_DSN", "REDIS_ADDR",
	"REDIS_PASSWORD", "JOURNAL_DRIVER", "JOURNAL_DSN", "EXPORT_DIR", "TELEGRAM_BOT_TOKEN",
	"TELEGRAM_CHAT_ID", "HTTPS_PROXY", "INITIAL_CASH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.BaseTick())
	assert.Equal(t, 1.0, cfg.Replay.Speed)
	assert.Equal(t, Slot{Symbol: "AAPL", Timeframe: "1m"}, cfg.Replay.Primary)
	assert.Equal(t, Slot{Symbol: "TSLA", Timeframe: "2m"}, cfg.Replay.Secondary)
	assert.Equal(t, 10000.0, cfg.Ledger.InitialCash)
	assert.Equal(t, 24*time.Hour, cfg.ResetEvery())
	assert.Equal(t, ProviderMock, cfg.DataSource.Provider)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "data/state", cfg.Storage.Path)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, "data/journal.db", cfg.Journal.DSN)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9000"
replay:
  speed: 2
  date: "2024-03-05"
  primary:
    symbol: MSFT
    timeframe: 5m
ledger:
  initial_cash: 25000
  reset_interval: 12h
storage:
  driver: sqlite
telegram:
  bot_token: yaml-token
  chat_id: "1"
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("INITIAL_CASH", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2.0, cfg.Replay.Speed)
	assert.Equal(t, "MSFT", cfg.Replay.Primary.Symbol)
	assert.Equal(t, "5m", cfg.Replay.Primary.Timeframe)
	assert.Equal(t, "TSLA", cfg.Replay.Secondary.Symbol)
	assert.Equal(t, 12*time.Hour, cfg.ResetEvery())
	assert.Equal(t, 5000.0, cfg.Ledger.InitialCash)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "data/state.db", cfg.Storage.Path)
}

func TestLoad_APIKeySelectsAlphaVantage(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALPHAVANTAGE_API_KEY", "demo")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderAlphaVantage, cfg.DataSource.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "replay: [oops"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := map[string]func(*Config){
		"speed":       func(c *Config) { c.Replay.Speed = -1 },
		"timeframe":   func(c *Config) { c.Replay.Secondary.Timeframe = "3m" },
		"date":        func(c *Config) { c.Replay.Date = "05/03/2024" },
		"cash":        func(c *Config) { c.Ledger.InitialCash = -5 },
		"reset":       func(c *Config) { c.Ledger.ResetInterval = "daily" },
		"timezone":    func(c *Config) { c.DataSource.Timezone = "Mars/Olympus" },
		"provider":    func(c *Config) { c.DataSource.Provider = "bloomberg" },
		"apikey":      func(c *Config) { c.DataSource.Provider = ProviderAlphaVantage },
		"storage":     func(c *Config) { c.Storage.Driver = "etcd" },
		"postgres":    func(c *Config) { c.Storage.Driver = "postgres" },
		"redis":       func(c *Config) { c.Storage.Driver = "redis" },
		"journal":     func(c *Config) { c.Journal.Driver = "mysql" },
		"journal dsn": func(c *Config) { c.Journal.Driver, c.Journal.DSN = "postgres", "" },
		"format":      func(c *Config) { c.Schedule.ExportFormat = "xlsx" },
		"telegram":    func(c *Config) { c.Telegram.BotToken, c.Telegram.ChatID = "t", "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestReplayDay(t *testing.T) {
	clearEnv(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cfg, err := Load("")
	require.NoError(t, err)

	now := time.Date(2024, 3, 6, 2, 0, 0, 0, time.UTC) // 21:00 on the 5th in New York
	assert.True(t, time.Date(2024, 3, 5, 0, 0, 0, 0, loc).Equal(cfg.ReplayDay(now, loc)))

	cfg.Replay.Date = "2024-01-02"
	assert.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, loc).Equal(cfg.ReplayDay(now, loc)))
}
