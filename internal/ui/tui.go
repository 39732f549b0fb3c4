// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the key command channel
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind names a transport command issued from the keyboard
type CommandKind int

const (
	CmdTogglePause CommandKind = iota
	CmdReset
	CmdSeek
	CmdQuit
)

// Command is a transport request from the TUI
type Command struct {
	Kind CommandKind
	// DeltaMs is the relative seek for CmdSeek.
	DeltaMs int64
}

// Controls carries commands from the TUI to the player
type Controls struct {
	Commands chan Command
}

// NewControls creates a new command channel
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
	}
}

// send queues a command without blocking the UI
func (c *Controls) send(cmd Command) {
	if c == nil {
		return
	}
	select {
	case c.Commands <- cmd:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(title string, controls *Controls) Model {
	return Model{
		title:    title,
		state:    "stopped",
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(title string, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(title, controls), tea.WithAltScreen())
}
