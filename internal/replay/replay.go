// Package replay loads stored records once and lays them over the chart and
// the map: every record goes into the chart data, every record with a
// coordinate pair becomes a marker with a popup, and the markers are joined
// into one path.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/luki/fieldview/internal/geo"
	"github.com/luki/fieldview/internal/history"
	"github.com/luki/fieldview/internal/maps"
	"github.com/luki/fieldview/internal/reading"
	"github.com/luki/fieldview/internal/store"
)

// DefaultJitter is the full width of the random offset added to each axis,
// so markers at the same spot do not hide each other.
const DefaultJitter = 0.0005

// PopupLayout formats the marker time in popups.
const PopupLayout = "02.01.2006 15:04:05"

// RandomJitter returns offsets uniformly distributed in ±amount/2.
func RandomJitter(amount float64) func() float64 {
	return func() float64 {
		return (rand.Float64() - 0.5) * amount
	}
}

// NoJitter keeps coordinates unchanged.
func NoJitter() float64 { return 0 }

// Loader performs the one-shot history overlay.
type Loader struct {
	Source   store.Source
	Geocoder geo.Geocoder // nil shows UnknownAddress everywhere
	Map      maps.Map
	Jitter   func() float64
	// Concurrency bounds the outstanding address lookups. 1 resolves
	// strictly one after another.
	Concurrency int
	Log         *slog.Logger
}

// NewLoader creates a loader with random jitter of the given width.
func NewLoader(src store.Source, geocoder geo.Geocoder, m maps.Map, jitter float64, concurrency int, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		Source:      src,
		Geocoder:    geocoder,
		Map:         m,
		Jitter:      RandomJitter(jitter),
		Concurrency: concurrency,
		Log:         log,
	}
}

// Point is one placed overlay marker.
type Point struct {
	Index   int // position in Result.Records
	Record  store.Record
	Pos     maps.Point
	Kind    maps.Kind
	Address string
	Popup   string
	Marker  maps.MarkerID
}

// Result is what one Load produced.
type Result struct {
	DeviceID string
	Records  []store.Record
	Chart    history.Snapshot
	Points   []Point
	Path     []maps.Point
}

// Load fetches the records of deviceID (all devices when empty) and draws
// them. A fetch failure is returned without touching the map.
func (l *Loader) Load(ctx context.Context, deviceID string) (Result, error) {
	log := l.logger()

	recs, err := l.Source.Fetch(ctx, deviceID)
	if err != nil {
		log.Error("history fetch failed", "device", deviceID, "error", err)
		return Result{}, fmt.Errorf("loading history: %w", err)
	}
	log.Info("history loaded", "device", deviceID, "records", len(recs))

	res := Result{
		DeviceID: deviceID,
		Records:  recs,
		Chart:    ChartData(deviceID, recs),
	}

	jitter := l.Jitter
	if jitter == nil {
		jitter = NoJitter
	}
	var pts []Point
	for i, r := range recs {
		lat, lon, ok := r.Position()
		if !ok {
			continue
		}
		pts = append(pts, Point{
			Index:  i,
			Record: r,
			Pos:    maps.Point{Lat: lat + jitter(), Lon: lon + jitter()},
		})
	}
	for i := range pts {
		pts[i].Kind = kindAt(i, len(pts))
	}

	var g errgroup.Group
	g.SetLimit(max(1, l.Concurrency))
	for i := range pts {
		i := i
		g.Go(func() error {
			pts[i].Address = l.address(ctx, pts[i].Pos)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i := range pts {
		p := &pts[i]
		p.Popup = Popup(p.Record, p.Pos, p.Address)
		p.Marker = l.Map.AddMarker(maps.Marker{Pos: p.Pos, Kind: p.Kind, Popup: p.Popup})
		res.Path = append(res.Path, p.Pos)
	}
	res.Points = pts

	if len(res.Path) >= 2 {
		l.Map.AddPath(res.Path)
	}
	return res, nil
}

// kindAt picks the marker icon for the i-th of n valid points.
func kindAt(i, n int) maps.Kind {
	switch {
	case i == 0:
		return maps.Start
	case i == n-1:
		return maps.End
	}
	return maps.Standard
}

func (l *Loader) address(ctx context.Context, p maps.Point) string {
	if l.Geocoder == nil {
		return geo.UnknownAddress
	}
	addr, err := l.Geocoder.Reverse(ctx, p.Lat, p.Lon)
	if err != nil {
		l.logger().Warn("address lookup failed", "lat", p.Lat, "lon", p.Lon, "error", err)
		return geo.UnknownAddress
	}
	return addr
}

func (l *Loader) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

// ChartData builds the chart sequences from all records, with or without
// coordinates.
func ChartData(deviceID string, recs []store.Record) history.Snapshot {
	sn := history.Snapshot{ID: deviceID}
	for _, r := range recs {
		sn.Times = append(sn.Times, r.Time)
		sn.Labels = append(sn.Labels, r.Label())
		sn.Temperature = append(sn.Temperature, r.Temperature)
		sn.Humidity = append(sn.Humidity, r.Humidity)
		sn.Moisture = append(sn.Moisture, r.Moisture)
	}
	return sn
}

// Popup renders the marker text for one record at its jittered position.
func Popup(r store.Record, pos maps.Point, address string) string {
	when := r.TimeText
	if t := r.MarkerTime(); !t.IsZero() {
		when = t.Local().Format(PopupLayout)
	}
	if when == "" {
		when = "-"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Time: %s\n", when)
	fmt.Fprintf(&sb, "GPS: %.6f, %.6f\n", pos.Lat, pos.Lon)
	fmt.Fprintf(&sb, "Address: %s\n", address)
	for i, m := range reading.Metrics {
		v := r.Reading().Get(m)
		text := "-"
		if v.Valid {
			text = v.String() + m.Unit()
		}
		fmt.Fprintf(&sb, "%s: %s", m.Label(), text)
		if i < len(reading.Metrics)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
