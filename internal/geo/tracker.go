package geo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luki/fieldview/internal/maps"
)

// Position is the last rendered GPS fix and its resolved address.
type Position struct {
	maps.Point
	Address string `json:"address,omitempty"`
}

// Tracker places the live marker for the latest GPS fix. Unchanged fixes are
// ignored so the map and the geocoder are only hit on movement.
type Tracker struct {
	mu       sync.Mutex
	m        maps.Map
	geocoder Geocoder
	log      *slog.Logger
	zoom     int

	last    *maps.Point
	marker  maps.MarkerID
	placed  bool
	address string

	wg sync.WaitGroup

	// OnChange, if set, is called after a marker was placed and again after
	// its popup received the address.
	OnChange func()
}

// NewTracker creates a tracker drawing onto m. geocoder may be nil.
func NewTracker(m maps.Map, geocoder Geocoder, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{m: m, geocoder: geocoder, log: log, zoom: maps.DefaultZoom}
}

// CoordinatePopup is the popup text shown before the address is known.
func CoordinatePopup(lat, lon float64) string {
	return fmt.Sprintf("GPS: %.6f, %.6f", lat, lon)
}

// Update moves the live marker to (lat, lon). It returns false without any
// side effect when the fix equals the last one. The address lookup runs in
// the background; ctx bounds it.
func (t *Tracker) Update(ctx context.Context, lat, lon float64) bool {
	t.mu.Lock()
	if t.last != nil && t.last.Lat == lat && t.last.Lon == lon {
		t.mu.Unlock()
		t.log.Debug("gps fix unchanged, map not updated", "lat", lat, "lon", lon)
		return false
	}

	p := maps.Point{Lat: lat, Lon: lon}
	t.last = &p
	if t.placed {
		t.m.RemoveMarker(t.marker)
	}
	popup := CoordinatePopup(lat, lon)
	id := t.m.AddMarker(maps.Marker{Pos: p, Kind: maps.Live, Popup: popup})
	t.marker = id
	t.placed = true
	t.address = ""
	t.m.SetView(p, t.zoom)
	t.mu.Unlock()

	t.notify()

	if t.geocoder != nil {
		t.wg.Add(1)
		go t.resolve(ctx, id, popup, lat, lon)
	}
	return true
}

func (t *Tracker) resolve(ctx context.Context, id maps.MarkerID, popup string, lat, lon float64) {
	defer t.wg.Done()

	address, err := t.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		t.log.Warn("address lookup failed", "lat", lat, "lon", lon, "error", err)
		address = UnknownAddress
	}

	t.mu.Lock()
	t.m.SetPopup(id, popup+"\nAddress: "+address)
	if t.placed && t.marker == id {
		t.address = address
	}
	t.mu.Unlock()

	t.notify()
}

func (t *Tracker) notify() {
	if t.OnChange != nil {
		t.OnChange()
	}
}

// Position returns the last fix, if any.
func (t *Tracker) Position() (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Position{}, false
	}
	return Position{Point: *t.last, Address: t.address}, true
}

// Wait blocks until all address lookups have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
