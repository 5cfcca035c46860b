// Package chart provides sparkline rendering for metric series with gap
// cells for absent values, minute tick marks, first/last labels and range
// scale bars.
package chart

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/fieldview/internal/reading"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const (
	padGlyph = "╌"
	gapGlyph = " "
	tickRune = "│"
)

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	tickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// Range returns the padded min/max of the present values. ok is false when
// no value is present.
func Range(values []reading.Value) (lo, hi float64, ok bool) {
	lo, hi = math.MaxFloat64, -math.MaxFloat64
	for _, v := range values {
		if !v.Valid {
			continue
		}
		ok = true
		lo = math.Min(lo, v.V)
		hi = math.Max(hi, v.V)
	}
	if !ok {
		return 0, 1, false
	}
	pad := (hi - lo) * 0.1
	if pad < 1 {
		pad = 1
	}
	return math.Floor(lo - pad), math.Ceil(hi + pad), true
}

// RenderSeries renders a sparkline in the given color. Absent values leave a
// gap; the line is never interpolated across them. When times is non-nil and
// aligned with values, a tick is drawn at each minute boundary. Only the
// newest width values are shown; shorter series are left-padded.
func RenderSeries(values []reading.Value, times []time.Time, width int, rangeMin, rangeMax float64, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	if len(values) == 0 {
		return dimStyle.Render(strings.Repeat(padGlyph, width))
	}
	if len(times) != len(values) {
		times = nil
	}

	if len(values) > width {
		values = values[len(values)-width:]
		if times != nil {
			times = times[len(times)-width:]
		}
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < width-len(values); i++ {
		sb.WriteString(dimStyle.Render(padGlyph))
	}

	style := lipgloss.NewStyle().Foreground(color)
	for i, v := range values {
		if times != nil && minuteTick(times, i) {
			sb.WriteString(tickStyle.Render(tickRune))
			continue
		}
		if !v.Valid {
			sb.WriteString(gapGlyph)
			continue
		}
		norm := (v.V - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))
		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

func minuteTick(times []time.Time, i int) bool {
	t := times[i]
	if t.IsZero() {
		return false
	}
	if t.Second() == 0 {
		return true
	}
	return i > 0 && !times[i-1].IsZero() && t.Minute() != times[i-1].Minute()
}

// RenderTimeline renders HH:MM labels under the minute ticks of a series.
func RenderTimeline(times []time.Time, width int) string {
	if len(times) == 0 || width <= 0 {
		return ""
	}
	if len(times) > width {
		times = times[len(times)-width:]
	}
	padLen := width - len(times)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i := range times {
		if !minuteTick(times, i) {
			continue
		}
		label := times[i].Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		for j, ch := range label {
			line[start+j] = ch
		}
		lastEnd = end
	}
	return tickStyle.Render(string(line))
}

// RenderLabels puts the first label on the left edge and the last label on
// the right edge. When both do not fit only the last one is shown.
func RenderLabels(labels []string, width int) string {
	if len(labels) == 0 || width <= 0 {
		return ""
	}
	first, last := labels[0], labels[len(labels)-1]
	if len(labels) == 1 {
		return tickStyle.Render(truncate(first, width))
	}
	gap := width - lipgloss.Width(first) - lipgloss.Width(last)
	if gap < 1 {
		return tickStyle.Render(fmt.Sprintf("%*s", width, truncate(last, width)))
	}
	return tickStyle.Render(first + strings.Repeat(" ", gap) + last)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}

// RenderScale renders a bar from rangeMin to rangeMax with a diamond at the
// current value. An absent current value leaves the bar empty.
func RenderScale(current reading.Value, rangeMin, rangeMax float64, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	curPos := -1
	if current.Valid {
		curPos = int(float64(width-1) * (current.V - rangeMin) / span)
		curPos = max(0, min(width-1, curPos))
	}

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == curPos {
			sb.WriteString(lipgloss.NewStyle().Foreground(color).Bold(true).Render("◆"))
			continue
		}
		sb.WriteString(dimStyle.Render("·"))
	}
	return sb.String()
}

// RenderValue renders one value with its unit in the metric's color, or a
// dim dash when absent.
func RenderValue(v reading.Value, m reading.Metric) string {
	if !v.Valid {
		return dimStyle.Render(fmt.Sprintf("%6s", "-"))
	}
	s := fmt.Sprintf("%5.1f%s", v.V, m.Unit())
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.Color())).Render(s)
}
