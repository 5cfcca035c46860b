package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/luki/fieldview/internal/config"
)

// sqliteRow maps the sensor table of a local SQLite history file.
type sqliteRow struct {
	ID          uint      `gorm:"primaryKey"`
	DeviceID    string    `gorm:"column:device_id;index"`
	Time        time.Time `gorm:"column:time;index"`
	Zeitpunkt   *time.Time
	Latitude    *float64
	Longitude   *float64
	Temperature *float64
	Humidity    *float64
	Moisture    *float64
}

// SQLiteSource reads a history table from a SQLite file through GORM.
type SQLiteSource struct {
	db    *gorm.DB
	table string
}

// NewSQLiteSource opens the database file.
func NewSQLiteSource(cfg config.SQLiteConfig) (*SQLiteSource, error) {
	if err := checkTable(cfg.Table); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}
	return &SQLiteSource{db: db, table: cfg.Table}, nil
}

// Migrate creates the sensor table when it does not exist.
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&sqliteRow{})
}

// Insert stores records, e.g. when importing a CSV export.
func (s *SQLiteSource) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]sqliteRow, 0, len(records))
	for _, r := range records {
		row := sqliteRow{
			DeviceID:    r.DeviceID,
			Time:        r.Time,
			Latitude:    ptr(r.Latitude.V, r.Latitude.Valid),
			Longitude:   ptr(r.Longitude.V, r.Longitude.Valid),
			Temperature: ptr(r.Temperature.V, r.Temperature.Valid),
			Humidity:    ptr(r.Humidity.V, r.Humidity.Valid),
			Moisture:    ptr(r.Moisture.V, r.Moisture.Valid),
		}
		if !r.Zeitpunkt.IsZero() {
			z := r.Zeitpunkt
			row.Zeitpunkt = &z
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).Table(s.table).Create(&rows).Error
}

func (s *SQLiteSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	q := s.db.WithContext(ctx).Table(s.table)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}

	var rows []sqliteRow
	if err := q.Order("time").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: querying %s: %w", s.table, err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r := Record{
			DeviceID:    row.DeviceID,
			Time:        row.Time,
			Latitude:    valueOf(row.Latitude),
			Longitude:   valueOf(row.Longitude),
			Temperature: valueOf(row.Temperature),
			Humidity:    valueOf(row.Humidity),
			Moisture:    valueOf(row.Moisture),
		}
		if row.Zeitpunkt != nil {
			r.Zeitpunkt = *row.Zeitpunkt
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLiteSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
