package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luki/fieldview/internal/config"
)

// PostgresSource reads a sensor table on PostgreSQL with the columns
// device_id, time, zeitpunkt, latitude, longitude, temperature, humidity
// and moisture.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource creates the pool and pings the server.
func NewPostgresSource(ctx context.Context, cfg config.PostgresConfig) (*PostgresSource, error) {
	if err := checkTable(cfg.Table); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid PostgreSQL config: %w", err)
	}
	poolConfig.MaxConns = 2
	poolConfig.ConnConfig.ConnectTimeout = cfg.GetConnectTimeout()

	ctxTimeout, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctxTimeout, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("store: creating PostgreSQL pool: %w", err)
	}
	if err := pool.Ping(ctxTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	return &PostgresSource{pool: pool, table: cfg.Table}, nil
}

func (s *PostgresSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	q := fmt.Sprintf(`SELECT device_id, time, zeitpunkt, latitude, longitude, temperature, humidity, moisture
FROM %s WHERE ($1 = '' OR device_id = $1) ORDER BY time`, s.table)

	rows, err := s.pool.Query(ctx, q, deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: querying %s: %w", s.table, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			r                 Record
			zeitpunkt         *time.Time
			lat, lon, t, h, m *float64
		)
		if err := row.Scan(&r.DeviceID, &r.Time, &zeitpunkt, &lat, &lon, &t, &h, &m); err != nil {
			return Record{}, err
		}
		if zeitpunkt != nil {
			r.Zeitpunkt = *zeitpunkt
		}
		r.Latitude, r.Longitude = valueOf(lat), valueOf(lon)
		r.Temperature, r.Humidity, r.Moisture = valueOf(t), valueOf(h), valueOf(m)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scanning %s: %w", s.table, err)
	}
	return out, nil
}

func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
