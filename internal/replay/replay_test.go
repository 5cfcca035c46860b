package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luki/fieldview/internal/geo"
	"github.com/luki/fieldview/internal/maps"
	"github.com/luki/fieldview/internal/reading"
	"github.com/luki/fieldview/internal/store"
)

type staticSource struct {
	recs []store.Record
	err  error
	got  string
}

func (s *staticSource) Fetch(ctx context.Context, deviceID string) ([]store.Record, error) {
	s.got = deviceID
	return s.recs, s.err
}

type delayGeocoder struct {
	mu     sync.Mutex
	calls  int
	failAt float64 // latitude that fails
}

func (g *delayGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	// Earlier points answer later, so completion order is reversed.
	time.Sleep(time.Duration(50-lat) * time.Millisecond)
	if lat == g.failAt {
		return "", errors.New("rate limited")
	}
	return fmt.Sprintf("Street %.0f", lat), nil
}

func rec(i int, withPos bool) store.Record {
	r := store.Record{
		DeviceID:    "d1",
		Time:        time.Date(2026, 2, 21, 14, i, 0, 0, time.UTC),
		Temperature: reading.Of(float64(20 + i)),
		Humidity:    reading.Of(40),
	}
	if withPos {
		r.Latitude = reading.Of(float64(40 + i))
		r.Longitude = reading.Of(15)
	}
	return r
}

func newLoader(src store.Source, g geo.Geocoder, c *maps.Canvas, concurrency int) *Loader {
	l := NewLoader(src, g, c, 0, concurrency, nil)
	l.Jitter = NoJitter
	return l
}

func TestLoadThreePoints(t *testing.T) {
	src := &staticSource{recs: []store.Record{rec(0, true), rec(1, false), rec(2, true), rec(3, true)}}
	c := maps.NewCanvas()

	res, err := newLoader(src, &delayGeocoder{}, c, 1).Load(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, "d1", src.got)

	require.Equal(t, 4, res.Chart.Len(), "chart holds records without coordinates too")
	require.Len(t, res.Points, 3)

	markers := c.Markers()
	require.Len(t, markers, 3)
	require.Equal(t, maps.Start, markers[0].Kind)
	require.Equal(t, maps.Standard, markers[1].Kind)
	require.Equal(t, maps.End, markers[2].Kind)

	paths := c.Paths()
	require.Len(t, paths, 1)
	require.Equal(t, []maps.Point{{Lat: 40, Lon: 15}, {Lat: 42, Lon: 15}, {Lat: 43, Lon: 15}}, paths[0])
}

func TestLoadOrderIndependentOfLookups(t *testing.T) {
	src := &staticSource{recs: []store.Record{rec(0, true), rec(1, true), rec(2, true), rec(3, true)}}
	c := maps.NewCanvas()
	g := &delayGeocoder{failAt: 41}

	res, err := newLoader(src, g, c, 4).Load(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 4, g.calls)

	markers := c.Markers()
	require.Len(t, markers, 4)
	for i, m := range markers {
		require.Equal(t, float64(40+i), m.Pos.Lat, "markers must follow record order")
	}
	require.Contains(t, markers[0].Popup, "Address: Street 40")
	require.Contains(t, markers[1].Popup, "Address: "+geo.UnknownAddress)
	require.Equal(t, markers[1].Popup, res.Points[1].Popup)
}

func TestLoadSinglePoint(t *testing.T) {
	src := &staticSource{recs: []store.Record{rec(0, false), rec(1, true)}}
	c := maps.NewCanvas()

	_, err := newLoader(src, nil, c, 1).Load(context.Background(), "")
	require.NoError(t, err)

	markers := c.Markers()
	require.Len(t, markers, 1)
	require.Equal(t, maps.Start, markers[0].Kind)
	require.Contains(t, markers[0].Popup, geo.UnknownAddress)
	require.Empty(t, c.Paths())
}

func TestLoadFetchError(t *testing.T) {
	src := &staticSource{err: errors.New("connection refused")}
	c := maps.NewCanvas()

	_, err := newLoader(src, nil, c, 1).Load(context.Background(), "")
	require.Error(t, err)
	require.Empty(t, c.Markers())
	require.Empty(t, c.Paths())
}

func TestPopup(t *testing.T) {
	r := rec(5, true)
	r.Moisture = reading.Absent
	got := Popup(r, maps.Point{Lat: 45, Lon: 15}, "Herrengasse 16, 8010 Graz, Austria")

	require.Contains(t, got, "GPS: 45.000000, 15.000000")
	require.Contains(t, got, "Address: Herrengasse 16, 8010 Graz, Austria")
	require.Contains(t, got, "Air temperature: 25°C")
	require.Contains(t, got, "Air humidity: 40%")
	require.Contains(t, got, "Soil moisture: -")
}

func TestJitterBounds(t *testing.T) {
	j := RandomJitter(DefaultJitter)
	for i := 0; i < 1000; i++ {
		v := j()
		require.True(t, v >= -DefaultJitter/2 && v <= DefaultJitter/2, "offset %v out of range", v)
	}
}

// flightGeocoder records the peak number of concurrent lookups.
type flightGeocoder struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *flightGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	g.mu.Lock()
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return "somewhere", nil
}

func TestSequentialLookups(t *testing.T) {
	for _, concurrency := range []int{1, 0} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			var recs []store.Record
			for i := 0; i < 6; i++ {
				recs = append(recs, rec(i, true))
			}
			g := &flightGeocoder{}
			_, err := newLoader(&staticSource{recs: recs}, g, maps.NewCanvas(), concurrency).Load(context.Background(), "d1")
			require.NoError(t, err)
			require.Equal(t, 1, g.peak)
		})
	}
}
