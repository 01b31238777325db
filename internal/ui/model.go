// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Defines application state, key handling and rendering
package ui

import (
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Stream
	codec      string
	sampleRate int
	channels   int

	// Playback
	stats     playback.Stats
	volume    int
	muted     bool
	lastError string

	// Debug
	showDebug bool

	controls *Controls

	// Dimensions
	width  int
	height int
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

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Voice"))
	b.WriteString("\n")
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())

	return b.String()
}

func field(name, value string) string {
	return headerStyle.Render(fmt.Sprintf("%-9s", name+":")) + " " + valueStyle.Render(value) + "\n"
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}
	return field("Status", connStatus)
}

// renderStreamInfo renders stream format and scheduler state
func (m Model) renderStreamInfo() string {
	if !m.connected || m.codec == "" {
		return field("Stream", "none") + "\n"
	}

	s := field("Stream", fmt.Sprintf("%s %dHz %s", m.codec, m.sampleRate, channelName(m.channels)))

	state := m.stats.State.String()
	switch m.stats.State {
	case playback.StateUnderrun:
		state = warnStyle.Render(state)
	case playback.StateScheduling:
		state = valueStyle.Render(fmt.Sprintf("%s (session %d)", state, m.stats.Session))
	}
	s += headerStyle.Render(fmt.Sprintf("%-9s", "State:")) + " " + state + "\n"

	return s + "\n"
}

// renderControls renders volume and buffer status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	s := field("Volume", fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon))
	s += field("Buffer", fmt.Sprintf("%dms (%d queued, %d scheduled)",
		int(m.stats.BufferedSeconds*1000), m.stats.QueueDepth, m.stats.InFlight))

	return s
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	s := field("Stats", fmt.Sprintf("RX: %d  Played: %d  Underruns: %d  Dropped: %d",
		m.stats.ChunksReceived, m.stats.FramesPlayed, m.stats.Underruns,
		m.stats.InvalidChunks+m.stats.Overflows))

	if m.lastError != "" {
		s += headerStyle.Render(fmt.Sprintf("%-9s", "Error:")) + " " +
			errorStyle.Render(truncate(m.lastError, 60)) + "\n"
	}

	return s + "\n"
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return helpStyle.Render("↑/↓:Volume  m:Mute  s:Stop  x:Cut  d:Debug  q:Quit") + "\n"
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return field("Debug", fmt.Sprintf("frame=%d samples  pending=%d  cursor=%.3fs  scheduled=%d  cancelled=%d",
		m.stats.FrameSize, m.stats.PendingSamples, m.stats.NextPlaybackTime,
		m.stats.FramesScheduled, m.stats.FramesCancelled)) + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		if m.volume < 100 {
			m.volume = min(m.volume+5, 100)
			m.controls.volumeChanged(m.volume, m.muted)
		}
	case "down":
		if m.volume > 0 {
			m.volume = max(m.volume-5, 0)
			m.controls.volumeChanged(m.volume, m.muted)
		}
	case "m":
		m.muted = !m.muted
		m.controls.volumeChanged(m.volume, m.muted)
	case "s":
		m.controls.stop(false)
	case "x":
		m.controls.stop(true)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Codec      string
	SampleRate int
	Channels   int
	Stats      *playback.Stats
	Volume     *int
	Muted      *bool
	Error      string
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
