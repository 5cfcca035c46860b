package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/luki/fieldview/internal/config"
)

// SQLServerSource reads a sensor table on SQL Server. The table has the
// columns deviceId, [time], zeitpunkt, latitude, longitude, temperature,
// humidity and moisture; all but deviceId and time may be NULL.
type SQLServerSource struct {
	db    *sql.DB
	table string
}

// SQLServerDSN builds the sqlserver:// connection URL for cfg.
func SQLServerDSN(cfg config.SQLServerConfig) string {
	query := url.Values{}
	if cfg.Database != "" {
		query.Add("database", cfg.Database)
	}
	query.Add("encrypt", cfg.Encrypt)
	query.Add("TrustServerCertificate", fmt.Sprintf("%t", cfg.TrustCert))
	query.Add("app name", cfg.AppName)
	query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectTimeout))

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// NewSQLServerSource opens the pool and pings the server.
func NewSQLServerSource(ctx context.Context, cfg config.SQLServerConfig) (*SQLServerSource, error) {
	if err := checkTable(cfg.Table); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlserver", SQLServerDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("store: creating SQL Server pool: %w", err)
	}
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connecting to SQL Server: %w", err)
	}
	return &SQLServerSource{db: db, table: cfg.Table}, nil
}

func (s *SQLServerSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	q := fmt.Sprintf(`SELECT deviceId, [time], zeitpunkt, latitude, longitude, temperature, humidity, moisture
FROM %s WHERE (@p1 = '' OR deviceId = @p1) ORDER BY [time]`, s.table)

	rows, err := s.db.QueryContext(ctx, q, deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			zeitpunkt         sql.NullTime
			lat, lon, t, h, m *float64
		)
		if err := rows.Scan(&r.DeviceID, &r.Time, &zeitpunkt, &lat, &lon, &t, &h, &m); err != nil {
			return nil, fmt.Errorf("store: scanning %s: %w", s.table, err)
		}
		if zeitpunkt.Valid {
			r.Zeitpunkt = zeitpunkt.Time
		}
		r.Latitude, r.Longitude = valueOf(lat), valueOf(lon)
		r.Temperature, r.Humidity, r.Moisture = valueOf(t), valueOf(h), valueOf(m)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLServerSource) Close() error {
	return s.db.Close()
}
