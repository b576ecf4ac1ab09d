package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  account_id: "1000000365"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:58610", cfg.Broker.BridgeURL)
	assert.Equal(t, "09:25", cfg.Trading.PrepareTime)
	assert.Equal(t, "09:30", cfg.Trading.OpenTime)
	assert.Equal(t, "15:10", cfg.Trading.RecordTime)
	assert.Equal(t, 300*time.Second, cfg.FillWait())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, int64(100000), cfg.Trading.SplitLimit)
	assert.Equal(t, "688", cfg.Trading.StarPrefix)
	assert.Equal(t, ".SH", cfg.Trading.StarSuffix)
	assert.Equal(t, 8080, cfg.Web.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
broker:
  account_id: "1000000365"
  bridge_url: "http://10.0.0.5:58610/"
  timeout_seconds: 60
trading:
  prepare_time: "09:20"
  fill_wait_seconds: 120
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:58610/", cfg.Broker.BridgeURL)
	assert.Equal(t, 60*time.Second, cfg.BrokerTimeout())
	assert.Equal(t, "09:20", cfg.Trading.PrepareTime)
	assert.Equal(t, 120*time.Second, cfg.FillWait())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing account id", `
broker:
  bridge_url: "http://127.0.0.1:58610"
`},
		{"bad prepare time", `
broker:
  account_id: "1000000365"
trading:
  prepare_time: "9am"
`},
		{"fill wait shorter than poll interval", `
broker:
  account_id: "1000000365"
trading:
  fill_wait_seconds: 1
  poll_interval_seconds: 5
`},
		{"telegram enabled without token", `
broker:
  account_id: "1000000365"
telegram:
  enabled: true
  chat_id: 123
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("09:25")
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 25, minute)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestMarketLocation(t *testing.T) {
	cfg := &Config{}
	loc := cfg.MarketLocation()

	// Asia/Shanghai is UTC+8 year-round.
	at := time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC).In(loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 30, at.Minute())
}
