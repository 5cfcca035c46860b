package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luki/fieldview/internal/maps"
)

// recordingMap counts widget calls on top of a real canvas.
type recordingMap struct {
	*maps.Canvas
	mu       sync.Mutex
	added    int
	removed  int
	recenter int
}

func newRecordingMap() *recordingMap {
	return &recordingMap{Canvas: maps.NewCanvas()}
}

func (r *recordingMap) AddMarker(m maps.Marker) maps.MarkerID {
	r.mu.Lock()
	r.added++
	r.mu.Unlock()
	return r.Canvas.AddMarker(m)
}

func (r *recordingMap) RemoveMarker(id maps.MarkerID) {
	r.mu.Lock()
	r.removed++
	r.mu.Unlock()
	r.Canvas.RemoveMarker(id)
}

func (r *recordingMap) SetView(p maps.Point, zoom int) {
	r.mu.Lock()
	r.recenter++
	r.mu.Unlock()
	r.Canvas.SetView(p, zoom)
}

type stubGeocoder struct {
	address string
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *stubGeocoder) Reverse(context.Context, float64, float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.address, s.err
}

func TestTrackerDedupe(t *testing.T) {
	m := newRecordingMap()
	g := &stubGeocoder{address: "Hauptplatz 1, 8010 Graz, Austria"}
	tr := NewTracker(m, g, nil)

	require.True(t, tr.Update(context.Background(), 47.07, 15.43))
	require.False(t, tr.Update(context.Background(), 47.07, 15.43))
	tr.Wait()

	require.Equal(t, 1, m.added)
	require.Equal(t, 0, m.removed)
	require.Equal(t, 1, m.recenter)
	require.Equal(t, 1, g.calls)

	markers := m.Markers()
	require.Len(t, markers, 1)
	require.Equal(t, maps.Live, markers[0].Kind)
	require.Equal(t, "GPS: 47.070000, 15.430000\nAddress: Hauptplatz 1, 8010 Graz, Austria", markers[0].Popup)
	require.Equal(t, maps.View{Center: maps.Point{Lat: 47.07, Lon: 15.43}, Zoom: maps.DefaultZoom}, m.View())

	pos, ok := tr.Position()
	require.True(t, ok)
	require.Equal(t, "Hauptplatz 1, 8010 Graz, Austria", pos.Address)
}

func TestTrackerMoveReplacesMarker(t *testing.T) {
	m := newRecordingMap()
	tr := NewTracker(m, nil, nil)

	tr.Update(context.Background(), 1, 1)
	tr.Update(context.Background(), 2, 2)

	require.Equal(t, 2, m.added)
	require.Equal(t, 1, m.removed)
	markers := m.Markers()
	require.Len(t, markers, 1)
	require.Equal(t, maps.Point{Lat: 2, Lon: 2}, markers[0].Pos)
	require.Equal(t, CoordinatePopup(2, 2), markers[0].Popup)
}

func TestTrackerGeocodeFailure(t *testing.T) {
	m := newRecordingMap()
	tr := NewTracker(m, &stubGeocoder{err: errors.New("boom")}, nil)

	changes := 0
	tr.OnChange = func() { changes++ }
	tr.Update(context.Background(), 47.07, 15.43)
	tr.Wait()

	require.Equal(t, 2, changes)
	require.True(t, strings.HasSuffix(m.Markers()[0].Popup, "Address: "+UnknownAddress))
}

func TestNominatimReverse(t *testing.T) {
	var gotQuery string
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		require.Equal(t, "/reverse", r.URL.Path)
		w.Write([]byte(`{"address":{"road":"Herrengasse","house_number":"16","postcode":"8010","city":"Graz","country":"Österreich"}}`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "fieldview-test", time.Second)
	addr, err := n.Reverse(context.Background(), 47.0707, 15.4395)
	require.NoError(t, err)
	require.Equal(t, "Herrengasse 16, 8010 Graz, Österreich", addr)
	require.Contains(t, gotQuery, "lat=47.0707")
	require.Contains(t, gotQuery, "addressdetails=1")
	require.Equal(t, "fieldview-test", gotUA)
}

func TestNominatimNoAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	addr, err := NewNominatim(srv.URL, "", time.Second).Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, UnknownAddress, addr)
}

func TestNominatimHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewNominatim(srv.URL, "", time.Second).Reverse(context.Background(), 0, 0)
	require.Error(t, err)
}

// gatedGeocoder answers each latitude only once its gate is released.
type gatedGeocoder struct {
	gates map[float64]chan string
}

func (g *gatedGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	select {
	case addr := <-g.gates[lat]:
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestTrackerStaleAddressKeepsNewerMarker(t *testing.T) {
	m := newRecordingMap()
	g := &gatedGeocoder{gates: map[float64]chan string{1: make(chan string), 2: make(chan string)}}
	tr := NewTracker(m, g, nil)

	require.True(t, tr.Update(context.Background(), 1, 1))
	require.True(t, tr.Update(context.Background(), 2, 2))

	g.gates[2] <- "new"
	g.gates[1] <- "old"
	tr.Wait()

	markers := m.Markers()
	require.Len(t, markers, 1)
	require.Equal(t, maps.Point{Lat: 2, Lon: 2}, markers[0].Pos)
	require.Equal(t, "GPS: 2.000000, 2.000000\nAddress: new", markers[0].Popup)

	pos, ok := tr.Position()
	require.True(t, ok)
	require.Equal(t, "new", pos.Address)
}
