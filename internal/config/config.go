// Package config loads the fieldview configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Series   SeriesConfig   `yaml:"series"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	History  HistoryConfig  `yaml:"history"`
	Map      MapConfig      `yaml:"map"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type FeedConfig struct {
	Transport    string     `yaml:"transport"` // "websocket" or "mqtt"
	WebSocketURL string     `yaml:"websocket_url"`
	MQTT         MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

type SeriesConfig struct {
	Capacity   int    `yaml:"capacity"`
	ZeroPolicy string `yaml:"zero_policy"` // "reading" or "absent"
	Selection  string `yaml:"selection"`   // "auto" or "manual"
}

type GeocoderConfig struct {
	Disabled  bool   `yaml:"disabled"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Timeout   string `yaml:"timeout"` // e.g. "10s"
}

// GetTimeout returns the request timeout, 10s when unset or invalid.
func (g GeocoderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

type HistoryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Source      string  `yaml:"source"` // http, csv, sqlserver, postgres, sqlite, dynamodb
	DeviceID    string  `yaml:"device_id"`
	Jitter      float64 `yaml:"jitter"`
	Concurrency int     `yaml:"concurrency"`

	HTTP      HTTPSourceConfig `yaml:"http"`
	CSV       CSVSourceConfig  `yaml:"csv"`
	SQLServer SQLServerConfig  `yaml:"sqlserver"`
	Postgres  PostgresConfig   `yaml:"postgres"`
	SQLite    SQLiteConfig     `yaml:"sqlite"`
	DynamoDB  DynamoDBConfig   `yaml:"dynamodb"`
}

type HTTPSourceConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the fetch timeout, 30s when unset or invalid.
func (h HTTPSourceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type CSVSourceConfig struct {
	Path string `yaml:"path"`
}

type SQLServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	Encrypt        string `yaml:"encrypt"`
	TrustCert      bool   `yaml:"trust_cert"`
	AppName        string `yaml:"app_name"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	Table          string `yaml:"table"`
}

type PostgresConfig struct {
	URL            string `yaml:"url"`
	Table          string `yaml:"table"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// GetConnectTimeout returns the connect timeout, 10s when unset or invalid.
func (p PostgresConfig) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(p.ConnectTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

type SQLiteConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

type DynamoDBConfig struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Table    string `yaml:"table"`
}

type MapConfig struct {
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	Zoom      int     `yaml:"zoom"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			Transport:    "websocket",
			WebSocketURL: "ws://localhost:3000",
			MQTT:         MQTTConfig{Topic: "devices/+/telemetry"},
		},
		Series: SeriesConfig{Capacity: 50, ZeroPolicy: "reading", Selection: "auto"},
		Geocoder: GeocoderConfig{
			BaseURL: "https://nominatim.openstreetmap.org",
			Timeout: "10s",
		},
		History: HistoryConfig{
			Enabled:     true,
			Source:      "http",
			Jitter:      0.0005,
			Concurrency: 1,
			HTTP:        HTTPSourceConfig{BaseURL: "http://localhost:3000", Timeout: "30s"},
			SQLServer:   SQLServerConfig{Port: 1433, Encrypt: "true", AppName: "fieldview", ConnectTimeout: 30, Table: "SensorData"},
			Postgres:    PostgresConfig{Table: "sensor_data", ConnectTimeout: "10s"},
			SQLite:      SQLiteConfig{Table: "sensor_data"},
			DynamoDB:    DynamoDBConfig{Region: "eu-central-1", Table: "sensor-data"},
		},
		Map: MapConfig{CenterLat: 47.0707, CenterLon: 15.4395, Zoom: 13},
		Web: WebConfig{Addr: ":8090"},
		Log: LogConfig{File: "fieldview.log", Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults and environment only.
// A .env file in the working directory is honoured if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Feed.Transport, "FIELDVIEW_TRANSPORT")
	setString(&c.Feed.WebSocketURL, "FIELDVIEW_WEBSOCKET_URL")
	setString(&c.Feed.MQTT.Broker, "FIELDVIEW_MQTT_BROKER")
	setString(&c.Feed.MQTT.Topic, "FIELDVIEW_MQTT_TOPIC")
	setString(&c.History.Source, "FIELDVIEW_HISTORY_SOURCE")
	setString(&c.History.HTTP.BaseURL, "FIELDVIEW_HISTORY_URL")
	setString(&c.History.SQLServer.Password, "FIELDVIEW_SQLSERVER_PASSWORD")
	setString(&c.History.Postgres.URL, "FIELDVIEW_POSTGRES_URL")
	setString(&c.Log.Level, "FIELDVIEW_LOG_LEVEL")
	setString(&c.Log.File, "FIELDVIEW_LOG_FILE")

	if v, ok := os.LookupEnv("FIELDVIEW_SERIES_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Series.Capacity = n
		}
	}
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.Feed.Transport {
	case "websocket":
		if c.Feed.WebSocketURL == "" {
			return errors.New("config: feed.websocket_url is required")
		}
	case "mqtt":
		if c.Feed.MQTT.Broker == "" || c.Feed.MQTT.Topic == "" {
			return errors.New("config: feed.mqtt.broker and feed.mqtt.topic are required")
		}
		if c.Feed.MQTT.QoS < 0 || c.Feed.MQTT.QoS > 2 {
			return fmt.Errorf("config: feed.mqtt.qos %d out of range", c.Feed.MQTT.QoS)
		}
	default:
		return fmt.Errorf("config: unknown feed.transport %q", c.Feed.Transport)
	}

	if c.Series.Capacity <= 0 {
		return fmt.Errorf("config: series.capacity must be positive, got %d", c.Series.Capacity)
	}
	switch c.Series.ZeroPolicy {
	case "", "reading", "absent":
	default:
		return fmt.Errorf("config: unknown series.zero_policy %q", c.Series.ZeroPolicy)
	}
	switch c.Series.Selection {
	case "", "auto", "manual":
	default:
		return fmt.Errorf("config: unknown series.selection %q", c.Series.Selection)
	}

	if c.History.Concurrency < 1 {
		c.History.Concurrency = 1
	}
	if c.History.Jitter < 0 {
		return fmt.Errorf("config: history.jitter must not be negative")
	}
	return nil
}
