// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program and the channels it drives the player with
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg is a volume/mute change made in the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls holds channels for player control from the TUI
type Controls struct {
	Changes chan VolumeChangeMsg
	Stops   chan bool // true for a hard stop
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan VolumeChangeMsg, 10),
		Stops:   make(chan bool, 4),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) volumeChanged(volume int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- VolumeChangeMsg{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) stop(hard bool) {
	if c == nil {
		return
	}
	select {
	case c.Stops <- hard:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, volume int) Model {
	return Model{
		volume:   volume,
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls, volume int) *tea.Program {
	return tea.NewProgram(NewModel(controls, volume), tea.WithAltScreen())
}
