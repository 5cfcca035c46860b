// Package maps holds the map layers (markers with popups, paths, viewport)
// and renders them onto a terminal grid or exports them as GeoJSON.
package maps

import (
	"sort"
	"sync"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Graz is the default map center.
var Graz = Point{Lat: 47.0707, Lon: 15.4395}

// DefaultZoom is the zoom used for the initial view and on recenter.
const DefaultZoom = 13

// Kind selects a marker icon.
type Kind int

const (
	Live Kind = iota
	Start
	End
	Standard
)

func (k Kind) String() string {
	switch k {
	case Live:
		return "live"
	case Start:
		return "start"
	case End:
		return "end"
	case Standard:
		return "standard"
	}
	return "unknown"
}

// MarkerID identifies a placed marker. IDs are never reused.
type MarkerID int

// Marker is one icon on the map.
type Marker struct {
	ID    MarkerID `json:"id"`
	Pos   Point    `json:"pos"`
	Kind  Kind     `json:"-"`
	Popup string   `json:"popup"`
}

// View is the viewport.
type View struct {
	Center Point `json:"center"`
	Zoom   int   `json:"zoom"`
}

// Map is the map widget as seen by the tracker and the history loader.
type Map interface {
	AddMarker(m Marker) MarkerID
	RemoveMarker(id MarkerID)
	SetPopup(id MarkerID, text string) bool
	SetView(center Point, zoom int)
	AddPath(pts []Point)
}

// Canvas is the in-memory Map used by the terminal views and the status API.
// It is safe for concurrent use.
type Canvas struct {
	mu      sync.RWMutex
	nextID  MarkerID
	markers map[MarkerID]Marker
	paths   [][]Point
	view    View
}

// NewCanvas creates an empty canvas centered on Graz.
func NewCanvas() *Canvas {
	return &Canvas{
		markers: make(map[MarkerID]Marker),
		view:    View{Center: Graz, Zoom: DefaultZoom},
	}
}

var _ Map = (*Canvas)(nil)

// AddMarker places a marker and returns its id.
func (c *Canvas) AddMarker(m Marker) MarkerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	m.ID = c.nextID
	c.markers[m.ID] = m
	return m.ID
}

// RemoveMarker removes a marker; unknown ids are ignored.
func (c *Canvas) RemoveMarker(id MarkerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, id)
}

// SetPopup replaces the popup text of a marker. It reports false when the
// marker has been removed in the meantime.
func (c *Canvas) SetPopup(id MarkerID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[id]
	if !ok {
		return false
	}
	m.Popup = text
	c.markers[id] = m
	return true
}

// SetView moves the viewport.
func (c *Canvas) SetView(center Point, zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = View{Center: center, Zoom: zoom}
}

// AddPath draws a polyline.
func (c *Canvas) AddPath(pts []Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, append([]Point(nil), pts...))
}

// Markers returns the markers ordered by id.
func (c *Canvas) Markers() []Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Marker, 0, len(c.markers))
	for _, m := range c.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Marker returns one marker.
func (c *Canvas) Marker(id MarkerID) (Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[id]
	return m, ok
}

// Paths returns copies of all polylines.
func (c *Canvas) Paths() [][]Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]Point, len(c.paths))
	for i, p := range c.paths {
		out[i] = append([]Point(nil), p...)
	}
	return out
}

// View returns the viewport.
func (c *Canvas) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}
