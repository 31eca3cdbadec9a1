package sim

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"sensor-sim/internal/config"
	"sensor-sim/internal/publisher"
	"sensor-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// readingMsg updates the per-type statistics.
type readingMsg struct{ telemetry.SensorReading }

// statusMsg carries a publisher snapshot.
type statusMsg struct{ publisher.Status }

const (
	maxLogLines = 1000
	cellWidth   = 14
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	anomalyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUIWriter renders published readings using a bubbletea TUI.
type TUIWriter struct {
	program teaProgram
	done    chan struct{}
	onQuit  func()
	closing atomic.Bool
	once    sync.Once
}

// NewTUIWriter starts a bubbletea program. onQuit runs when the user leaves
// the TUI, not when Close is called.
func NewTUIWriter(cfg *config.SimulationConfig, onQuit func()) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{}), onQuit: onQuit}
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if !w.closing.Load() && w.onQuit != nil {
			w.onQuit()
		}
	}()
	return w
}

// Write implements ReadingWriter.
func (w *TUIWriter) Write(r telemetry.SensorReading) error {
	w.program.Send(logMsg{line: formatReadingLine(r)})
	w.program.Send(readingMsg{r})
	return nil
}

// SetStatus pushes a publisher snapshot to the status bar.
func (w *TUIWriter) SetStatus(st publisher.Status) {
	w.program.Send(statusMsg{st})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.once.Do(func() {
		w.closing.Store(true)
		if w.program != nil {
			w.program.Send(tea.Quit())
		}
		if w.done != nil {
			<-w.done
		}
	})
	return nil
}

func formatReadingLine(r telemetry.SensorReading) string {
	value := okStyle.Render(fmt.Sprintf("%.2f", r.Value))
	if r.Anomalous {
		value = anomalyStyle.Render(fmt.Sprintf("%.2f !", r.Value))
	}
	return fmt.Sprintf("%s %-12s %s %s %s",
		dimStyle.Render(r.Time().UTC().Format(time.RFC3339)),
		r.SensorType, r.SensorID, r.Location, value)
}

type typeStats struct {
	count     int
	anomalies int
	last      float64
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	table      table.Model
	vp         viewport.Model
	logs       []string
	stats      map[string]*typeStats
	status     publisher.Status
	haveStatus bool
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "Type", Width: cellWidth},
		{Title: "Range", Width: cellWidth + 4},
		{Title: "Sent", Width: 8},
		{Title: "Anomalies", Width: 10},
		{Title: "Last", Width: 10},
	}
	m := tuiModel{
		cfg:        cfg,
		vp:         viewport.New(0, 0),
		stats:      make(map[string]*typeStats),
		autoscroll: true,
	}
	if cfg != nil {
		for _, t := range cfg.SensorTypes {
			m.stats[t] = &typeStats{}
		}
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows(m.rows()), table.WithHeight(len(m.stats)+1))
	return m
}

func (m tuiModel) rows() []table.Row {
	if m.cfg == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(m.cfg.SensorTypes))
	for _, t := range m.cfg.SensorTypes {
		st := m.stats[t]
		last := "-"
		if st.count > 0 {
			last = fmt.Sprintf("%.2f", st.last)
		}
		rows = append(rows, table.Row{
			truncate.StringWithTail(t, cellWidth, "…"),
			m.cfg.ValueRanges[t].String(),
			fmt.Sprintf("%d", st.count),
			fmt.Sprintf("%d", st.anomalies),
			last,
		})
	}
	return rows
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.table.SetWidth(msg.Width)
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			m.help = false
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "h", "?":
			m.help = true
		case "up", "k":
			m.vp.LineUp(1)
		case "down", "j":
			m.vp.LineDown(1)
		case "pgup":
			m.vp.LineUp(m.halfPage())
		case "pgdown":
			m.vp.LineDown(m.halfPage())
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case readingMsg:
		st, ok := m.stats[msg.SensorType]
		if !ok {
			st = &typeStats{}
			m.stats[msg.SensorType] = st
		}
		st.count++
		st.last = msg.Value
		if msg.Anomalous {
			st.anomalies++
		}
		m.table.SetRows(m.rows())
	case statusMsg:
		m.status = msg.Status
		m.haveStatus = true
	}
	return m, nil
}

func (m tuiModel) halfPage() int {
	if m.vp.Height < 2 {
		return 1
	}
	return m.vp.Height / 2
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.table.View()) - lipgloss.Height(m.renderStatus()) - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := dimStyle.Render(strings.Repeat("─", m.vp.Width))
	return strings.Join([]string{
		headerStyle.Render("sensor-sim"),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderStatus(),
	}, "\n")
}

func (m tuiModel) renderStatus() string {
	if !m.haveStatus {
		return dimStyle.Render("waiting for broker status…  (h for help)")
	}
	state := okStyle.Render(m.status.State)
	if m.status.State != publisher.StateConnected.String() && m.status.State != publisher.StatePublishing.String() {
		state = warnStyle.Render(m.status.State)
	}
	line := fmt.Sprintf("%s  broker=%s topic=%s published=%d anomalies=%d failures=%d",
		state, m.status.Broker, m.status.Topic, m.status.Published, m.status.Anomalies, m.status.Failures)
	if m.status.LastError != "" {
		line += " " + anomalyStyle.Render("last error: "+m.status.LastError)
	}
	if m.width > 0 {
		line = truncate.StringWithTail(line, uint(m.width), "…")
	}
	return line
}

func (m tuiModel) renderHelp() string {
	return strings.Join([]string{
		headerStyle.Render("Keys"),
		"q        quit (stops the simulator)",
		"w        toggle line wrap",
		"s        toggle autoscroll",
		"↑/↓ j/k  scroll",
		"pgup/dn  scroll half a page",
		"",
		dimStyle.Render("press any key to return"),
	}, "\n")
}
