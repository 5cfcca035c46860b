package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "websocket", cfg.Feed.Transport)
	require.Equal(t, 50, cfg.Series.Capacity)
	require.Equal(t, "reading", cfg.Series.ZeroPolicy)
	require.Equal(t, "http", cfg.History.Source)
	require.Equal(t, 1, cfg.History.Concurrency)
	require.InDelta(t, 0.0005, cfg.History.Jitter, 1e-12)
	require.Equal(t, 13, cfg.Map.Zoom)
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
feed:
  transport: mqtt
  mqtt:
    broker: tcp://broker:1883
    qos: 1
series:
  capacity: 20
  selection: manual
history:
  source: sqlite
  sqlite:
    path: history.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "mqtt", cfg.Feed.Transport)
	require.Equal(t, "tcp://broker:1883", cfg.Feed.MQTT.Broker)
	require.Equal(t, "devices/+/telemetry", cfg.Feed.MQTT.Topic, "unset keys keep their default")
	require.Equal(t, 1, cfg.Feed.MQTT.QoS)
	require.Equal(t, 20, cfg.Series.Capacity)
	require.Equal(t, "manual", cfg.Series.Selection)
	require.Equal(t, "history.db", cfg.History.SQLite.Path)
	require.Equal(t, "sensor_data", cfg.History.SQLite.Table)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIELDVIEW_WEBSOCKET_URL", "ws://feed.example:9000")
	t.Setenv("FIELDVIEW_SERIES_CAPACITY", "7")
	t.Setenv("FIELDVIEW_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "series:\n  capacity: 30\n"))
	require.NoError(t, err)
	require.Equal(t, "ws://feed.example:9000", cfg.Feed.WebSocketURL)
	require.Equal(t, 7, cfg.Series.Capacity)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "feed: [not, a, map]\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"mqtt without broker": func(c *Config) {
			c.Feed.Transport = "mqtt"
			c.Feed.MQTT.Broker = ""
		},
		"qos out of range": func(c *Config) {
			c.Feed.Transport = "mqtt"
			c.Feed.MQTT.Broker = "tcp://b:1883"
			c.Feed.MQTT.QoS = 3
		},
		"unknown transport": func(c *Config) { c.Feed.Transport = "carrier-pigeon" },
		"zero capacity":     func(c *Config) { c.Series.Capacity = 0 },
		"bad zero policy":   func(c *Config) { c.Series.ZeroPolicy = "sometimes" },
		"bad selection":     func(c *Config) { c.Series.Selection = "random" },
		"negative jitter":   func(c *Config) { c.History.Jitter = -1 },
		"empty websocket":   func(c *Config) { c.Feed.WebSocketURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateClampsConcurrency(t *testing.T) {
	cfg := Default()
	cfg.History.Concurrency = 0
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.History.Concurrency)
}

func TestTimeouts(t *testing.T) {
	require.Equal(t, 10*time.Second, GeocoderConfig{}.GetTimeout())
	require.Equal(t, 3*time.Second, GeocoderConfig{Timeout: "3s"}.GetTimeout())
	require.Equal(t, 30*time.Second, HTTPSourceConfig{Timeout: "soon"}.GetTimeout())
	require.Equal(t, 10*time.Second, PostgresConfig{}.GetConnectTimeout())
}
