package maps

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var kindGlyph = map[Kind]struct {
	ch    string
	color lipgloss.Color
}{
	Live:     {"⌂", lipgloss.Color("214")},
	Start:    {"S", lipgloss.Color("196")},
	End:      {"E", lipgloss.Color("46")},
	Standard: {"•", lipgloss.Color("33")},
}

// spanForZoom approximates the visible longitude span of a web map of the
// given zoom level.
func spanForZoom(zoom int) float64 {
	if zoom < 0 {
		zoom = 0
	}
	return 360 / math.Pow(2, float64(zoom))
}

type bounds struct {
	minLat, maxLat, minLon, maxLon float64
}

func (b *bounds) extend(p Point) {
	b.minLat = math.Min(b.minLat, p.Lat)
	b.maxLat = math.Max(b.maxLat, p.Lat)
	b.minLon = math.Min(b.minLon, p.Lon)
	b.maxLon = math.Max(b.maxLon, p.Lon)
}

// frame fits the viewport and every layer, never narrower than the zoom
// span around the center.
func (c *Canvas) frame(markers []Marker, paths [][]Point, view View) bounds {
	half := spanForZoom(view.Zoom) / 2
	b := bounds{
		minLat: view.Center.Lat - half/2, maxLat: view.Center.Lat + half/2,
		minLon: view.Center.Lon - half, maxLon: view.Center.Lon + half,
	}
	for _, m := range markers {
		b.extend(m.Pos)
	}
	for _, p := range paths {
		for _, pt := range p {
			b.extend(pt)
		}
	}
	return b
}

// Render draws the canvas into a width x height grid.
func (c *Canvas) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	markers := c.Markers()
	paths := c.Paths()
	view := c.View()
	b := c.frame(markers, paths, view)

	latSpan := b.maxLat - b.minLat
	lonSpan := b.maxLon - b.minLon
	if latSpan <= 0 {
		latSpan = 1e-9
	}
	if lonSpan <= 0 {
		lonSpan = 1e-9
	}

	project := func(p Point) (int, int) {
		x := int(math.Round((p.Lon - b.minLon) / lonSpan * float64(width-1)))
		y := int(math.Round((b.maxLat - p.Lat) / latSpan * float64(height-1)))
		return x, y
	}

	grid := make([][]string, height)
	for y := range grid {
		grid[y] = make([]string, width)
	}

	pathStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	for _, p := range paths {
		for i := 1; i < len(p); i++ {
			x0, y0 := project(p[i-1])
			x1, y1 := project(p[i])
			line(x0, y0, x1, y1, func(x, y int) {
				if x >= 0 && x < width && y >= 0 && y < height {
					grid[y][x] = pathStyle.Render("·")
				}
			})
		}
	}

	cx, cy := project(view.Center)
	if cx >= 0 && cx < width && cy >= 0 && cy < height && grid[cy][cx] == "" {
		grid[cy][cx] = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("+")
	}

	for _, m := range markers {
		x, y := project(m.Pos)
		if x < 0 || x >= width || y < 0 || y >= height {
			continue
		}
		g := kindGlyph[m.Kind]
		grid[y][x] = lipgloss.NewStyle().Foreground(g.color).Bold(true).Render(g.ch)
	}

	empty := lipgloss.NewStyle().Foreground(lipgloss.Color("236")).Render("·")
	var sb strings.Builder
	for y, row := range grid {
		for _, cell := range row {
			if cell == "" {
				cell = empty
			}
			sb.WriteString(cell)
		}
		if y < height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// line walks the cells between two grid points (Bresenham).
func line(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
