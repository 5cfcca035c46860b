package maps

import (
	"strings"
	"testing"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/require"
)

func TestCanvasMarkers(t *testing.T) {
	c := NewCanvas()
	a := c.AddMarker(Marker{Pos: Point{1, 1}, Kind: Start, Popup: "a"})
	b := c.AddMarker(Marker{Pos: Point{2, 2}, Kind: End})
	require.NotEqual(t, a, b)

	require.True(t, c.SetPopup(b, "resolved"))
	m, ok := c.Marker(b)
	require.True(t, ok)
	require.Equal(t, "resolved", m.Popup)

	c.RemoveMarker(a)
	require.False(t, c.SetPopup(a, "late"))
	require.Len(t, c.Markers(), 1)

	c.SetView(Point{3, 3}, 10)
	require.Equal(t, View{Center: Point{3, 3}, Zoom: 10}, c.View())
}

func TestCanvasRender(t *testing.T) {
	c := NewCanvas()
	c.AddMarker(Marker{Pos: Point{47.00, 15.40}, Kind: Start})
	c.AddMarker(Marker{Pos: Point{47.10, 15.50}, Kind: End})
	c.AddPath([]Point{{47.00, 15.40}, {47.10, 15.50}})

	out := c.Render(30, 10)
	require.Len(t, strings.Split(out, "\n"), 10)
	require.Contains(t, out, "S")
	require.Contains(t, out, "E")
	require.Empty(t, c.Render(0, 5))
}

func TestCanvasGeoJSON(t *testing.T) {
	c := NewCanvas()
	c.AddMarker(Marker{Pos: Point{Lat: 47.1, Lon: 15.4}, Kind: Live, Popup: "here"})
	c.AddPath([]Point{{1, 2}, {3, 4}})

	raw, err := c.GeoJSON()
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	require.True(t, fc.Features[0].Geometry.IsPoint())
	require.Equal(t, []float64{15.4, 47.1}, fc.Features[0].Geometry.Point)
	require.Equal(t, "live", fc.Features[0].Properties["kind"])
	require.True(t, fc.Features[1].Geometry.IsLineString())
	require.Equal(t, [][]float64{{2, 1}, {4, 3}}, fc.Features[1].Geometry.LineString)
}
