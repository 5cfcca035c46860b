// Package store reads historical sensor records from the configured
// backend: the dashboard's HTTP endpoint, a CSV export, or one of the
// supported databases.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/luki/fieldview/internal/config"
	"github.com/luki/fieldview/internal/reading"
)

// ErrUnknownSource is returned by Open for an unsupported source name.
var ErrUnknownSource = errors.New("unknown history source")

// Record is one stored sample. Coordinates and sensor values are optional.
type Record struct {
	DeviceID    string
	Time        time.Time
	TimeText    string    // raw timestamp text when Time did not parse
	Zeitpunkt   time.Time // marker time, zero when the source has none
	Latitude    reading.Value
	Longitude   reading.Value
	Temperature reading.Value
	Humidity    reading.Value
	Moisture    reading.Value
}

// Label returns the chart label for the record.
func (r Record) Label() string {
	if r.Time.IsZero() {
		return r.TimeText
	}
	return reading.FormatTime(r.Time)
}

// MarkerTime is the time shown in a map popup: the marker time when the
// source provides one, the sample time otherwise.
func (r Record) MarkerTime() time.Time {
	if !r.Zeitpunkt.IsZero() {
		return r.Zeitpunkt
	}
	return r.Time
}

// Position reports the coordinate pair. A pair counts only when both parts
// are present and non-zero; devices without a fix report 0.
func (r Record) Position() (lat, lon float64, ok bool) {
	if !r.Latitude.Valid || !r.Longitude.Valid || r.Latitude.V == 0 || r.Longitude.V == 0 {
		return 0, 0, false
	}
	return r.Latitude.V, r.Longitude.V, true
}

// Reading converts the record into a chart sample.
func (r Record) Reading() reading.Reading {
	return reading.Reading{
		Time:        r.Time,
		Label:       r.Label(),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Moisture:    r.Moisture,
	}
}

// Source fetches the records of one device, or of all devices when
// deviceID is empty, ordered by time.
type Source interface {
	Fetch(ctx context.Context, deviceID string) ([]Record, error)
}

// Closer is implemented by sources that hold a connection pool.
type Closer interface {
	Close() error
}

// Open builds the source named by cfg.Source.
func Open(ctx context.Context, cfg config.HistoryConfig) (Source, error) {
	switch cfg.Source {
	case "http", "":
		return NewHTTPSource(cfg.HTTP.BaseURL, cfg.HTTP.GetTimeout()), nil
	case "csv":
		return &CSVSource{Path: cfg.CSV.Path}, nil
	case "sqlserver":
		return NewSQLServerSource(ctx, cfg.SQLServer)
	case "postgres":
		return NewPostgresSource(ctx, cfg.Postgres)
	case "sqlite":
		return NewSQLiteSource(cfg.SQLite)
	case "dynamodb":
		return NewDynamoSource(cfg.DynamoDB), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkTable guards table names that are spliced into SQL text.
func checkTable(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("store: invalid table name %q", name)
	}
	return nil
}

func valueOf(p *float64) reading.Value {
	if p == nil {
		return reading.Absent
	}
	return reading.Of(*p)
}
