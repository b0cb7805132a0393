package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mathiasbredholt/GestureLooper/clock"
	"github.com/mathiasbredholt/GestureLooper/graph"
	"github.com/mathiasbredholt/GestureLooper/looper"
)

// Model is a read-only monitor of the bus: track parameters, every
// signal with its current value, and the installed maps. It never
// writes to the graph.
type Model struct {
	Graph *graph.Graph
	Loops []*looper.Loop
	Clock clock.Source

	offset   int // first visible signal row
	height   int
	quitting bool
}

type UpdateMsg struct{}

type frameMsg time.Time

func NewModel(g *graph.Graph, loops []*looper.Loop, clk clock.Source) Model {
	return Model{Graph: g, Loops: loops, Clock: clk}
}

// ListenForUpdates wakes the view whenever a signal value changes
func ListenForUpdates(g *graph.Graph) tea.Cmd {
	return func() tea.Msg {
		<-g.Updates()
		return UpdateMsg{}
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForUpdates(m.Graph), frameTick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "j", "down":
			m.offset++

		case "k", "up":
			if m.offset > 0 {
				m.offset--
			}
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height

	case UpdateMsg:
		return m, ListenForUpdates(m.Graph)

	case frameMsg:
		return m, frameTick()
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	trackStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	remoteStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(fmt.Sprintf("gesturelooper  beat %8.2f", m.Clock.Beats())))
	out.WriteString("\n\n")

	for _, l := range m.Loops {
		p := l.Params()
		mute := " "
		if p.Mute {
			mute = "M"
		}
		out.WriteString(trackStyle.Render(fmt.Sprintf(
			"%-12s rec %.2f  len %5.2f  div %2.0f  mod %.2f  miss %d  %s",
			l.Name(), p.Record, p.Length, p.Division, p.Modulation, l.MissedTicks(), mute)))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	signals := m.Graph.Signals()
	rows := m.visibleRows(len(signals))
	offset := m.offset
	if offset > len(signals)-rows {
		offset = len(signals) - rows
	}
	if offset < 0 {
		offset = 0
	}
	for i := offset; i < len(signals) && i < offset+rows; i++ {
		s := signals[i]
		line := fmt.Sprintf("%-28s %-3s %-7s %s", s.Name(), s.Dir(), s.Kind(), fmtVals(s.Value()))
		if s.Remote() {
			out.WriteString(remoteStyle.Render(line + "  (peer)"))
		} else {
			out.WriteString(line)
		}
		out.WriteString("\n")
	}
	if len(signals) > offset+rows {
		out.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(signals)-offset-rows)))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	for _, mp := range m.Graph.Maps() {
		state := "ready"
		if !mp.Ready() {
			state = "staged"
		}
		srcs := mp.Sources()
		names := make([]string, len(srcs))
		for i, s := range srcs {
			names[i] = s.Name()
		}
		out.WriteString(dimStyle.Render(fmt.Sprintf("map %s -> %s (%s)",
			strings.Join(names, ", "), mp.Destination().Name(), state)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("j/k:scroll  q:quit"))
	return out.String()
}

// visibleRows leaves room for the header, tracks, maps and help line
func (m Model) visibleRows(total int) int {
	if m.height == 0 {
		return total
	}
	rows := m.height - 8 - len(m.Loops) - len(m.Graph.Maps())
	if rows < 3 {
		rows = 3
	}
	if rows > total {
		rows = total
	}
	return rows
}

func fmtVals(v []float64) string {
	if v == nil {
		return "-"
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "[" + strings.Join(parts, " ") + "]"
}
