package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luki/fieldview/internal/reading"
)

// HTTPSource reads the dashboard backend's /api/database-data endpoint.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates a source with its own client timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type wireRecord struct {
	DeviceID    string        `json:"deviceId"`
	Time        string        `json:"time"`
	Zeitpunkt   string        `json:"zeitpunkt"`
	Latitude    reading.Value `json:"latitude"`
	Longitude   reading.Value `json:"longitude"`
	Temperature reading.Value `json:"temperature"`
	Humidity    reading.Value `json:"humidity"`
	Moisture    reading.Value `json:"moisture"`
}

func (w wireRecord) record() Record {
	return Record{
		DeviceID:    w.DeviceID,
		Time:        reading.ParseTime(w.Time),
		TimeText:    w.Time,
		Zeitpunkt:   reading.ParseTime(w.Zeitpunkt),
		Latitude:    w.Latitude,
		Longitude:   w.Longitude,
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		Moisture:    w.Moisture,
	}
}

// URL returns the request URL. The deviceId query is only added when a
// device is given.
func (s *HTTPSource) URL(deviceID string) string {
	u := s.BaseURL + "/api/database-data"
	if deviceID != "" {
		u += "?" + url.Values{"deviceId": {deviceID}}.Encode()
	}
	return u
}

func (s *HTTPSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(deviceID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching history: %s", resp.Status)
	}

	var rows []wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, w := range rows {
		out = append(out, w.record())
	}
	return out, nil
}
