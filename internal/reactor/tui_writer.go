package reactor

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type sampleMsg struct{ samples []telemetry.Sample }
type logMsg struct{ entries []eventlog.Entry }
type stateMsg struct{ telemetry.StateRow }
type reactionMsg struct{ telemetry.ReactionRow }
type adminMsg struct{ addr string }
type setSubmitMsg struct{ fn func(string) }

const (
	chartHeight   = 8
	gaugeWidth    = 20
	maxTags       = 2
	inputHint     = "Inject data into the core..."
	processingMsg = "Reaction in progress..."
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	powerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	heatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	overlapStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

// TUIWriter renders engine output in a bubbletea dashboard and feeds
// typed injections back to the engine.
type TUIWriter struct {
	program teaProgram
	done    chan struct{}
}

// NewTUIWriter starts a bubbletea program. onExit runs when the user quits
// the dashboard.
func NewTUIWriter(ov *Overview, onExit func()) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	p := tea.NewProgram(newTUIModel(ov), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if onExit != nil {
			onExit()
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(s telemetry.Sample) error {
	w.program.Send(sampleMsg{samples: []telemetry.Sample{s}})
	return nil
}

// WriteBatch outputs multiple samples.
func (w *TUIWriter) WriteBatch(rows []telemetry.Sample) error {
	w.program.Send(sampleMsg{samples: append([]telemetry.Sample(nil), rows...)})
	return nil
}

// WriteLog implements LogWriter.
func (w *TUIWriter) WriteLog(e eventlog.Entry) error {
	w.program.Send(logMsg{entries: []eventlog.Entry{e}})
	return nil
}

// WriteLogs outputs multiple log entries.
func (w *TUIWriter) WriteLogs(entries []eventlog.Entry) error {
	w.program.Send(logMsg{entries: append([]eventlog.Entry(nil), entries...)})
	return nil
}

// WriteState implements StateWriter.
func (w *TUIWriter) WriteState(row telemetry.StateRow) error {
	w.program.Send(stateMsg{row})
	return nil
}

// WriteReaction implements ReactionWriter.
func (w *TUIWriter) WriteReaction(row telemetry.ReactionRow) error {
	w.program.Send(reactionMsg{row})
	return nil
}

// SetAdminAddr shows the admin UI address in the footer.
func (w *TUIWriter) SetAdminAddr(addr string) {
	w.program.Send(adminMsg{addr: addr})
}

// SetSubmitter registers the callback that receives typed injections.
func (w *TUIWriter) SetSubmitter(fn func(string)) {
	w.program.Send(setSubmitMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	overview   *Overview
	samples    []telemetry.Sample
	capacity   int
	logs       []eventlog.Entry
	logCap     int
	state      telemetry.StateRow
	last       *telemetry.ReactionRow
	input      textinput.Model
	vp         viewport.Model
	wrap       bool
	autoscroll bool
	width      int
	height     int
	admin      string
	submit     func(string)
}

func newTUIModel(ov *Overview) tuiModel {
	in := textinput.New()
	in.Placeholder = inputHint
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()
	return tuiModel{
		overview:   ov,
		capacity:   telemetry.DefaultCapacity,
		logCap:     eventlog.DefaultCapacity,
		state:      telemetry.StateRow{Mode: string(ModeIdle), Stability: InitialStability},
		input:      in,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return textinput.Blink }

func (m tuiModel) processing() bool { return m.state.Mode == string(ModeProcessing) }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.input.Width = msg.Width - 4
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			m.autoscroll = m.vp.AtBottom()
			return m, cmd
		case "enter":
			val := m.input.Value()
			if m.processing() || strings.TrimSpace(val) == "" {
				return m, nil
			}
			if m.submit != nil {
				// the engine may be busy delivering to this program
				go m.submit(val)
			}
			m.input.Reset()
			return m, nil
		}
		if m.processing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case sampleMsg:
		m.samples = append(m.samples, msg.samples...)
		if over := len(m.samples) - m.capacity; over > 0 {
			m.samples = append([]telemetry.Sample(nil), m.samples[over:]...)
		}
	case logMsg:
		m.logs = append(m.logs, msg.entries...)
		if over := len(m.logs) - m.logCap; over > 0 {
			m.logs = append([]eventlog.Entry(nil), m.logs[over:]...)
		}
		m.refreshViewport()
	case stateMsg:
		m.state = msg.StateRow
		if m.processing() {
			m.input.Placeholder = processingMsg
			m.input.Blur()
		} else {
			m.input.Placeholder = inputHint
			m.input.Focus()
		}
	case reactionMsg:
		if msg.Outcome != telemetry.OutcomeFailed {
			row := msg.ReactionRow
			m.last = &row
		}
		m.updateViewportHeight()
	case adminMsg:
		m.admin = msg.addr
	case setSubmitMsg:
		m.submit = msg.fn
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.renderTop()) + lipgloss.Height(m.renderBottom()) + 3
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, e := range m.logs {
		l := logLine(e)
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		lines = append(lines, l)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func logLine(e eventlog.Entry) string {
	style := lipgloss.NewStyle().Foreground(severityTermColor(e.Severity))
	return dimStyle.Render("["+e.Timestamp+"]") + " " + style.Render(e.Message)
}

func severityTermColor(s eventlog.Severity) lipgloss.Color {
	switch s {
	case eventlog.SeverityError:
		return lipgloss.Color("9")
	case eventlog.SeverityWarning:
		return lipgloss.Color("11")
	case eventlog.SeveritySuccess:
		return lipgloss.Color("10")
	default:
		return lipgloss.Color("12")
	}
}

func modeTermColor(mode string) lipgloss.Color {
	switch Mode(mode) {
	case ModeProcessing:
		return lipgloss.Color("11")
	case ModeActive:
		return lipgloss.Color("10")
	case ModeWarning:
		return lipgloss.Color("9")
	default:
		return lipgloss.Color("12")
	}
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.renderTop(),
		divider,
		m.vp.View(),
		divider,
		m.input.View(),
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderTop() string {
	return strings.Join([]string{m.renderHeader(), m.renderPanels()}, "\n")
}

func (m tuiModel) renderHeader() string {
	cluster := ""
	if m.overview != nil && m.overview.ClusterID != "" {
		cluster = dimStyle.Render(" " + m.overview.ClusterID)
	}
	badge := lipgloss.NewStyle().Bold(true).Foreground(modeTermColor(m.state.Mode)).
		Render(strings.ToUpper(m.state.Mode))
	return fmt.Sprintf("%s%s  %s  STABILITY %.1f%%  SYSTEM LOAD %.1f%%",
		titleStyle.Render("THE REACTOR"), cluster, badge, m.state.Stability, m.state.SystemLoad)
}

func (m tuiModel) renderPanels() string {
	chart := panelStyle.Render(renderChart(m.samples, chartHeight) + "\n" +
		powerStyle.Render("█ power") + "  " + heatStyle.Render("█ heat") + "  " + overlapStyle.Render("█ both"))

	heat := 0.0
	if n := len(m.samples); n > 0 {
		heat = m.samples[n-1].Heat
	}
	eff := 0.0
	if m.last != nil {
		eff = m.last.Efficiency
	}
	gauges := panelStyle.Render(strings.Join([]string{
		"HEAT       " + gauge(heat, gaugeWidth),
		"EFFICIENCY " + gauge(eff, gaugeWidth),
		"",
		m.renderResult(),
	}, "\n"))
	if m.width > 0 && lipgloss.Width(chart)+lipgloss.Width(gauges) > m.width {
		return lipgloss.JoinVertical(lipgloss.Left, chart, gauges)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chart, gauges)
}

func (m tuiModel) renderResult() string {
	if m.last == nil {
		return dimStyle.Render("No reaction analysed yet.")
	}
	summary := wordwrap.String(m.last.Summary, gaugeWidth+11)
	var tags []string
	for _, t := range insightTags(m.last.Insights) {
		tags = append(tags, tagStyle.Render(t))
	}
	threat := lipgloss.NewStyle().Foreground(modeTermColor(string(ModeActive)))
	if m.last.Outcome == telemetry.OutcomeThreat {
		threat = threat.Foreground(modeTermColor(string(ModeWarning)))
	}
	return strings.Join([]string{
		"THREAT " + threat.Render(m.last.ThreatLevel),
		summary,
		strings.Join(tags, " "),
	}, "\n")
}

// insightTags turns the first insights into "#firstword" tags.
func insightTags(insights []string) []string {
	var tags []string
	for _, in := range insights {
		if len(tags) == maxTags {
			break
		}
		f := strings.Fields(in)
		if len(f) == 0 {
			continue
		}
		tags = append(tags, "#"+strings.ToLower(f[0]))
	}
	return tags
}

func gauge(v float64, width int) string {
	v = math.Max(0, math.Min(100, v))
	filled := int(math.Round(v / 100 * float64(width)))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %3.0f%%", v)
}

// renderChart draws power and heat as overlapping area series, one column
// per sample, on a 0..100 scale.
func renderChart(samples []telemetry.Sample, height int) string {
	if len(samples) == 0 || height <= 0 {
		return dimStyle.Render("awaiting telemetry")
	}
	rows := make([]string, height)
	for r := 0; r < height; r++ {
		level := 100 * float64(height-r-1) / float64(height)
		var b strings.Builder
		for _, s := range samples {
			p, h := s.Power > level, s.Heat > level
			switch {
			case p && h:
				b.WriteString(overlapStyle.Render("█"))
			case p:
				b.WriteString(powerStyle.Render("█"))
			case h:
				b.WriteString(heatStyle.Render("█"))
			default:
				b.WriteString(" ")
			}
		}
		rows[r] = b.String()
	}
	return strings.Join(rows, "\n")
}

func (m tuiModel) renderBottom() string {
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("10")
	if !m.autoscroll {
		scrollColor = lipgloss.Color("9")
	}
	adminColor := lipgloss.Color("9")
	admin := "off"
	if m.admin != "" {
		adminColor = lipgloss.Color("10")
		admin = m.admin
	}
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	adminIndicator := lipgloss.NewStyle().Foreground(adminColor).Render("●")
	return dimStyle.Render("enter inject | tab wrap | pgup/pgdn scroll | esc quit") +
		fmt.Sprintf(" | Wrap %s | Scroll %s | Admin %s %s", wrapIndicator, scrollIndicator, adminIndicator, admin)
}
