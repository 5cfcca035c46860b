// Package monitor implements the live device dashboard TUI using BubbleTea:
// device list, rolling sparkline charts of the selected device and a map
// panel with the last GPS fix.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/fieldview/internal/chart"
	"github.com/luki/fieldview/internal/feed"
	"github.com/luki/fieldview/internal/history"
	"github.com/luki/fieldview/internal/maps"
	"github.com/luki/fieldview/internal/reading"
)

const (
	tickInterval = 1 * time.Second
	mapHeight    = 12
	scaleWidth   = 12
)

// ── Messages ─────────────────────────────────────────────────────────

// FeedMsg carries one raw live message into the Update loop, so events
// are routed one at a time in arrival order.
type FeedMsg []byte

// RedrawMsg asks for a redraw after state changed outside Update, e.g. an
// address lookup finished.
type RedrawMsg struct{}

// FeedErrMsg reports that the live source stopped.
type FeedErrMsg struct{ Err error }

type tickMsg time.Time

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	ctx     context.Context
	router  *feed.Router
	session *feed.Session
	canvas  *maps.Canvas

	err       error
	width     int
	height    int
	scroll    int
	lastMsg   time.Time
	startTime time.Time
	paused    bool
	frozen    *history.Snapshot
	accepted  int
	dropped   int
	lastDrop  string
}

// New creates the model. ctx bounds the address lookups started while
// routing; canvas may be nil to hide the map panel.
func New(ctx context.Context, router *feed.Router, canvas *maps.Canvas) Model {
	return Model{
		ctx:       ctx,
		router:    router,
		session:   router.Session(),
		canvas:    canvas,
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.session.Cycle(1)
			m.refreeze()
		case "shift+tab":
			m.session.Cycle(-1)
			m.refreeze()
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
			m.refreeze()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case FeedMsg:
		res := m.router.Handle(m.ctx, msg)
		m.lastMsg = time.Now()
		if res.Accepted {
			m.accepted++
		} else {
			m.dropped++
			m.lastDrop = res.Reason
		}

	case FeedErrMsg:
		m.err = msg.Err

	case RedrawMsg:
	}

	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorDevice   = lipgloss.Color("147")
	colorSelected = lipgloss.Color("214")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCrit     = lipgloss.Color("196")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	if m.session.Registry.Count() == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for device data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderDevices(contentWidth))
		sections = append(sections, m.renderCharts(contentWidth))
	}

	if m.canvas != nil {
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

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("FIELDVIEW LIVE")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string

	statusParts = append(statusParts, lipgloss.NewStyle().
		Foreground(colorDevice).
		Render(feed.CountText(m.session.Registry.Count())))

	statusParts = append(statusParts,
		dimS.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))

	if !m.lastMsg.IsZero() {
		statusParts = append(statusParts,
			dimS.Render(fmt.Sprintf("%d msgs, last %s", m.accepted, m.lastMsg.Format("15:04:05"))))
	}

	if m.dropped > 0 {
		statusParts = append(statusParts,
			dimS.Render(fmt.Sprintf("%d dropped (%s)", m.dropped, m.lastDrop)))
	}

	if m.paused {
		p := lipgloss.NewStyle().
			Foreground(colorPaused).
			Bold(true).
			Render("PAUSED")
		statusParts = append(statusParts, p)
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

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

func (m Model) renderDevices(width int) string {
	selected, _ := m.session.Selected()
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	var items []string
	for _, id := range m.session.Registry.IDs() {
		n := 0
		if s, ok := m.session.Registry.Find(id); ok {
			n = s.Len()
		}
		style := lipgloss.NewStyle().Foreground(colorDevice)
		mark := "  "
		if id == selected {
			style = lipgloss.NewStyle().Foreground(colorSelected).Bold(true)
			mark = "▸ "
		}
		items = append(items, style.Render(mark+id)+dimS.Render(fmt.Sprintf(" (%d)", n)))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Render(strings.Join(items, "   "))
}

// refreeze takes a new chart snapshot of the selected device while paused.
func (m *Model) refreeze() {
	m.frozen = nil
	if !m.paused {
		return
	}
	if sn, ok := m.session.Chart(); ok {
		m.frozen = &sn
	}
}

func (m Model) chartData() (history.Snapshot, bool) {
	if m.paused && m.frozen != nil {
		return *m.frozen, true
	}
	return m.session.Chart()
}

func (m Model) renderCharts(totalWidth int) string {
	sn, ok := m.chartData()
	if !ok {
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(totalWidth).
			Align(lipgloss.Center).
			Render("No device selected. Press tab.")
	}

	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}
	chartWidth := innerWidth - 60 - scaleWidth - 1
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	labelW := 16
	valueW := 8

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string
	rows = append(rows, lipgloss.NewStyle().Bold(true).Foreground(colorDevice).Render(sn.ID)+
		dimS.Render(fmt.Sprintf("  %d samples", sn.Len())))

	for _, metric := range reading.Metrics {
		values := sn.Values(metric)
		lo, hi, _ := chart.Range(values)
		lo = min(lo, 0)
		hi = max(hi, 100)

		var cur reading.Value
		if n := len(values); n > 0 {
			cur = values[n-1]
		}

		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Width(labelW).
			Render(truncate(metric.Label(), labelW))
		value := lipgloss.NewStyle().
			Width(valueW).
			Align(lipgloss.Right).
			Render(chart.RenderValue(cur, metric))

		spark := chart.RenderSeries(values, sn.Times, chartWidth, lo, hi, lipgloss.Color(metric.Color()))

		st := sn.Stats(metric)
		stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", st.Avg)) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%5.1f", st.Min)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%5.1f", st.Peak))
		if st.Count == 0 {
			stats = dimS.Render(" no data")
		}

		scale := chart.RenderScale(cur, lo, hi, scaleWidth, lipgloss.Color(metric.Color()))

		rows = append(rows, label+" "+value+" "+frameL+spark+frameR+stats+" "+scale)
	}

	pad := strings.Repeat(" ", labelW+valueW+2)
	if timeline := chart.RenderTimeline(lastN(sn.Times, chartWidth), chartWidth); strings.TrimSpace(timeline) != "" {
		rows = append(rows, pad+" "+timeline)
	}
	if labels := chart.RenderLabels(lastN(sn.Labels, chartWidth), chartWidth); labels != "" {
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
	innerWidth := totalWidth - 4
	if innerWidth < 20 {
		innerWidth = 20
	}

	popupW := 44
	mapW := innerWidth - popupW - 2
	if mapW < 20 {
		mapW = innerWidth
		popupW = 0
	}

	grid := m.canvas.Render(mapW, mapHeight)

	var popup string
	for _, mk := range m.canvas.Markers() {
		if mk.Kind == maps.Live {
			popup = mk.Popup
		}
	}
	if popup == "" {
		popup = "No GPS fix yet."
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

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(body)
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	var legend string
	for _, metric := range reading.Metrics {
		legend += lipgloss.NewStyle().Foreground(lipgloss.Color(metric.Color())).Render("██") +
			dimS.Render(" "+metric.Name()+" ")
	}
	legend += lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│") + dimS.Render(" 1min")

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  tab") + keyS.Render(":device") +
		dimS.Render("  j/k") + keyS.Render(":scroll") +
		dimS.Render("  p") + keyS.Render(":pause")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + filler + keys)
}

func lastN[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mn := d / time.Minute
	d -= mn * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mn, s)
	}
	return fmt.Sprintf("%dm%02ds", mn, s)
}
