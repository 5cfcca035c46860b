// Package viewer implements the history overlay TUI: the stored records of
// a device as sparkline charts with a time scrubber, and their positions as
// a marker path on the map.
package viewer

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/fieldview/internal/chart"
	"github.com/luki/fieldview/internal/maps"
	"github.com/luki/fieldview/internal/reading"
	"github.com/luki/fieldview/internal/replay"
)

const (
	mapHeight = 14
	skipStep  = 10
)

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorDevice   = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCursor   = lipgloss.Color("214")
	colorCrit     = lipgloss.Color("196")
)

// ── Messages ─────────────────────────────────────────────────────────

// LoadedMsg delivers the result of the one-shot history load.
type LoadedMsg struct {
	Result replay.Result
	Err    error
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the history overlay.
type Model struct {
	ctx      context.Context
	loader   *replay.Loader
	deviceID string
	canvas   *maps.Canvas

	loading bool
	res     replay.Result
	points  map[int]int // record index -> index into res.Points
	cursor  int
	scroll  int
	width   int
	height  int
	err     error
}

// New creates the model; the history is loaded by Init. canvas must be
// the map the loader draws on.
func New(ctx context.Context, loader *replay.Loader, deviceID string, canvas *maps.Canvas) Model {
	return Model{
		ctx:      ctx,
		loader:   loader,
		deviceID: deviceID,
		canvas:   canvas,
		loading:  loader != nil,
	}
}

func (m Model) load() tea.Msg {
	res, err := m.loader.Load(m.ctx, m.deviceID)
	return LoadedMsg{Result: res, Err: err}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	if m.loader == nil {
		return nil
	}
	return m.load
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case LoadedMsg:
		m.loading = false
		m.err = msg.Err
		m.res = msg.Result
		m.points = make(map[int]int, len(msg.Result.Points))
		for i, p := range msg.Result.Points {
			m.points[p.Index] = i
		}
		m.cursor = max(0, len(m.res.Records)-1)
		m.scroll = 0

	case tea.KeyMsg:
		n := len(m.res.Records)
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < n-1 {
				m.cursor++
			}
		case "shift+left", "H":
			m.cursor = max(0, m.cursor-skipStep)
		case "shift+right", "L":
			m.cursor = max(0, min(n-1, m.cursor+skipStep))
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = max(0, n-1)

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// Popup returns the popup text of the record under the cursor, or false
// when that record has no coordinates.
func (m Model) Popup() (string, bool) {
	i, ok := m.points[m.cursor]
	if !ok {
		return "", false
	}
	return m.res.Points[i].Popup, true
}

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitle(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	switch {
	case m.loading:
		sections = append(sections, m.centered(contentWidth, "Loading history..."))
	case len(m.res.Records) == 0:
		sections = append(sections, m.centered(contentWidth, "No history data."))
	default:
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderCharts(contentWidth))
		sections = append(sections, m.renderMap(contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := m.height
	if visibleLines < 5 {
		visibleLines = 5
	}
	maxScroll := len(lines) - visibleLines
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}

	start := m.scroll
	end := start + visibleLines
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[start:end], "\n")
}

func (m Model) centered(width int, text string) string {
	return lipgloss.NewStyle().
		Foreground(colorDim).
		Padding(2, 0).
		Align(lipgloss.Center).
		Width(width).
		Render(text)
}

func (m Model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("FIELDVIEW HISTORY")

	device := m.deviceID
	if device == "" {
		device = "all devices"
	}
	deviceText := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(device)

	dataInfo := ""
	if recs := m.res.Records; len(recs) > 0 {
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d records, %d on map)",
				recs[0].Label(), recs[len(recs)-1].Label(), len(recs), len(m.res.Points)))
	}

	right := deviceText + dataInfo

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + filler + right)
}

func (m Model) renderCursorInfo(width int) string {
	recs := m.res.Records
	if m.cursor < 0 || m.cursor >= len(recs) {
		return ""
	}

	ts := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(recs[m.cursor].Label())

	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(recs)))

	barWidth := width - lipgloss.Width(ts) - lipgloss.Width(pos) - 8
	if barWidth < 10 {
		barWidth = 10
	}

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(barWidth))
}

func (m Model) renderScrubber(width int) string {
	n := len(m.res.Records)
	if n == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if n > 1 {
		pos = m.cursor * (width - 1) / (n - 1)
	}
	if pos >= width {
		pos = width - 1
	}

	var sb strings.Builder
	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	gpsS := lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		idx := 0
		if n > 1 {
			idx = i * (n - 1) / (width - 1)
		}
		if _, ok := m.points[idx]; ok {
			sb.WriteString(gpsS.Render("─"))
		} else {
			sb.WriteString(dimS.Render("─"))
		}
	}
	return sb.String()
}

func (m Model) renderCharts(totalWidth int) string {
	sn := m.res.Chart

	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}
	chartWidth := innerWidth - 60
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	labelW := 16
	valueW := 8

	// The window ends at the cursor.
	end := min(m.cursor+1, sn.Len())
	start := max(0, end-chartWidth)

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string
	for _, metric := range reading.Metrics {
		values := sn.Values(metric)
		lo, hi, _ := chart.Range(values)
		lo = min(lo, 0)
		hi = max(hi, 100)

		var cur reading.Value
		if m.cursor < len(values) {
			cur = values[m.cursor]
		}

		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Bold(true).
			Width(labelW).
			Render(truncate(metric.Label(), labelW))
		value := lipgloss.NewStyle().
			Width(valueW).
			Align(lipgloss.Right).
			Render(chart.RenderValue(cur, metric))

		spark := chart.RenderSeries(values[start:end], sn.Times[start:end], chartWidth, lo, hi, lipgloss.Color(metric.Color()))

		st := sn.Stats(metric)
		stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", st.Avg)) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%5.1f", st.Min)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%5.1f", st.Peak))
		if st.Count == 0 {
			stats = dimS.Render(" no data")
		}

		rows = append(rows, label+" "+value+" "+frameL+spark+frameR+stats)
	}

	if labels := chart.RenderLabels(sn.Labels[start:end], chartWidth); labels != "" {
		pad := strings.Repeat(" ", labelW+valueW+2)
		rows = append(rows, pad+" "+labels)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderMap(totalWidth int) string {
	if m.canvas == nil {
		return ""
	}
	innerWidth := totalWidth - 4
	if innerWidth < 20 {
		innerWidth = 20
	}

	popupW := 48
	mapW := innerWidth - popupW - 2
	if mapW < 20 {
		mapW = innerWidth
		popupW = 0
	}

	grid := m.canvas.Render(mapW, mapHeight)

	popup, ok := m.Popup()
	if !ok {
		popup = "No GPS data for this record."
	}

	var body string
	if popupW > 0 {
		text := lipgloss.NewStyle().
			Foreground(colorLabel).
			Width(popupW).
			Padding(0, 1).
			Render(popup)
		body = lipgloss.JoinHorizontal(lipgloss.Top, grid, "  ", text)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, grid, popup)
	}

	legend := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("S") +
		lipgloss.NewStyle().Foreground(colorDim).Render(" start  ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Render("•") +
		lipgloss.NewStyle().Foreground(colorDim).Render(" point  ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render("E") +
		lipgloss.NewStyle().Foreground(colorDim).Render(" end")

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, legend, body))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(fmt.Sprintf(":skip %d", skipStep)) +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	device := lipgloss.NewStyle().Foreground(colorDevice).Render(m.deviceID)

	gap := width - lipgloss.Width(keys) - lipgloss.Width(device) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys + strings.Repeat(" ", gap) + device)
}

// ── Helpers ──────────────────────────────────────────────────────────

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}
