package maps

import (
	geojson "github.com/paulmach/go.geojson"
)

// FeatureCollection exports markers and paths. Coordinates are [lon, lat].
func (c *Canvas) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range c.Markers() {
		f := geojson.NewPointFeature([]float64{m.Pos.Lon, m.Pos.Lat})
		f.SetProperty("id", int(m.ID))
		f.SetProperty("kind", m.Kind.String())
		f.SetProperty("popup", m.Popup)
		fc.AddFeature(f)
	}
	for _, p := range c.Paths() {
		coords := make([][]float64, len(p))
		for i, pt := range p {
			coords[i] = []float64{pt.Lon, pt.Lat}
		}
		f := geojson.NewLineStringFeature(coords)
		f.SetProperty("kind", "path")
		fc.AddFeature(f)
	}
	return fc
}

// GeoJSON marshals the canvas layers.
func (c *Canvas) GeoJSON() ([]byte, error) {
	return c.FeatureCollection().MarshalJSON()
}
