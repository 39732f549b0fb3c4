// ABOUTME: Bubbletea model for the show player TUI
// ABOUTME: Renders transport, stream and node status and maps keys to commands
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SeekStepMs is the seek distance of the arrow keys
const SeekStepMs = 5000

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	nodeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// Model represents the TUI state
type Model struct {
	title string

	// Show
	session    string
	soundtrack string
	frameCount int
	duration   uint64
	fps        int

	// Transport
	state    string
	position uint64
	frame    int

	// Stats
	delivered int64
	corrupt   int64
	resyncs   int64
	loops     int64
	lastErr   string

	nodes []NodeStatus

	controls *Controls
	quitting bool
	width    int
	height   int
}

// NodeStatus is one connected node line
type NodeStatus struct {
	Name     string
	Addr     string
	State    string
	Received int64
	Dropped  int64
}

// StatusMsg updates TUI state; zero fields leave the model untouched
type StatusMsg struct {
	Session    string
	Soundtrack string
	FrameCount int
	Duration   uint64
	FPS        int

	State    string
	Position *uint64
	Frame    *int

	Delivered int64
	Corrupt   int64
	Resyncs   int64
	Loops     int64
	LastError string

	Nodes []NodeStatus
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// handleKey maps keys onto transport commands
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.send(Command{Kind: CmdQuit})
		return m, tea.Quit
	case " ", "space":
		m.controls.send(Command{Kind: CmdTogglePause})
	case "r":
		m.controls.send(Command{Kind: CmdReset})
	case "left":
		m.controls.send(Command{Kind: CmdSeek, DeltaMs: -SeekStepMs})
	case "right":
		m.controls.send(Command{Kind: CmdSeek, DeltaMs: SeekStepMs})
	}
	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Session != "" {
		m.session = msg.Session
	}
	if msg.Soundtrack != "" {
		m.soundtrack = msg.Soundtrack
	}
	if msg.FrameCount != 0 {
		m.frameCount = msg.FrameCount
		m.duration = msg.Duration
	}
	if msg.FPS != 0 {
		m.fps = msg.FPS
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Position != nil {
		m.position = *msg.Position
	}
	if msg.Frame != nil {
		m.frame = *msg.Frame
	}
	if msg.Delivered != 0 {
		m.delivered = msg.Delivered
		m.corrupt = msg.Corrupt
		m.resyncs = msg.Resyncs
		m.loops = msg.Loops
	}
	if msg.LastError != "" {
		m.lastErr = msg.LastError
	}
	if msg.Nodes != nil {
		m.nodes = msg.Nodes
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping show...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Lumen · " + m.title))
	b.WriteString("\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-11s", name)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("State:", m.state)
	field("Position:", fmt.Sprintf("%s / %s", formatMs(m.position), formatMs(m.duration)))
	field("Frame:", fmt.Sprintf("%d / %d", m.frame, m.frameCount))
	if m.fps > 0 {
		field("Rate:", fmt.Sprintf("%d fps", m.fps))
	}
	if m.soundtrack != "" {
		field("Soundtrack:", m.soundtrack)
	}
	if m.session != "" {
		field("Session:", m.session)
	}
	field("Delivered:", fmt.Sprintf("%d  corrupt: %d  resyncs: %d  loops: %d",
		m.delivered, m.corrupt, m.resyncs, m.loops))
	if m.lastErr != "" {
		b.WriteString(warnStyle.Render("Last error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(nodeStyle.Render(fmt.Sprintf("Nodes (%d)", len(m.nodes))))
	b.WriteString("\n")
	if len(m.nodes) == 0 {
		b.WriteString(valueStyle.Render("  none connected"))
		b.WriteString("\n")
	}
	for _, n := range m.nodes {
		b.WriteString(valueStyle.Render(fmt.Sprintf("  %-20s %-21s %-12s rx:%d drop:%d",
			truncate(n.Name, 20), n.Addr, n.State, n.Received, n.Dropped)))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("space:Pause  r:Reset  ←/→:Seek 5s  q:Quit"))
	b.WriteString("\n")
	return b.String()
}

func formatMs(ms uint64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d.%03d", int(d.Minutes()), int(d.Seconds())%60, ms%1000)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
