package store

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/luki/fieldview/internal/reading"
)

// CSVHeader is the column layout of a history export.
var CSVHeader = []string{"time", "device", "latitude", "longitude", "temperature", "humidity", "moisture"}

// CSVSource reads a history export. Empty cells are absent values.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "time" {
			continue
		}
		if len(row) < len(CSVHeader) {
			continue
		}
		if deviceID != "" && row[1] != deviceID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records = append(records, Record{
			DeviceID:    row[1],
			Time:        reading.ParseTime(row[0]),
			TimeText:    row[0],
			Latitude:    cell(row[2]),
			Longitude:   cell(row[3]),
			Temperature: cell(row[4]),
			Humidity:    cell(row[5]),
			Moisture:    cell(row[6]),
		})
	}
	return records, nil
}

// WriteCSV writes records in the export layout.
func WriteCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	w.Write(CSVHeader)
	for _, r := range records {
		ts := r.TimeText
		if !r.Time.IsZero() {
			ts = r.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		w.Write([]string{ts, r.DeviceID,
			cellText(r.Latitude), cellText(r.Longitude),
			cellText(r.Temperature), cellText(r.Humidity), cellText(r.Moisture)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cell(s string) reading.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return reading.Absent
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return reading.Absent
	}
	return reading.Of(f)
}

func cellText(v reading.Value) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}
