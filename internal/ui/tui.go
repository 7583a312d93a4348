// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and carries key actions to the host
package ui

import (
	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	tea "github.com/charmbracelet/bubbletea"
)

// CaptureAction is a capture request from the keyboard
type CaptureAction int

const (
	ActionStart CaptureAction = iota
	ActionStop
	ActionStopAndTranscode
)

// VolumeChangeMsg is a volume or mute change from the keyboard
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg signals the user quit the TUI
type QuitMsg struct{}

// Controls holds channels for actions leaving the TUI
type Controls struct {
	Volume  chan VolumeChangeMsg
	Capture chan CaptureAction
	Quit    chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Volume:  make(chan VolumeChangeMsg, 10),
		Capture: make(chan CaptureAction, 4),
		Quit:    make(chan QuitMsg, 1),
	}
}

// Sends never block the UI; a full channel drops the action.
func (c *Controls) volume(v int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Volume <- VolumeChangeMsg{Volume: v, Muted: muted}:
	default:
	}
}

func (c *Controls) capture(a CaptureAction) {
	if c == nil {
		return
	}
	select {
	case c.Capture <- a:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- QuitMsg{}:
	default:
	}
}

// NewModel creates a new TUI model. status may be nil.
func NewModel(controls *Controls, status func() recorder.Status) Model {
	return Model{
		volume:       100,
		captureState: "idle",
		controls:     controls,
		status:       status,
	}
}

// Run creates the TUI program; the caller starts it with p.Run
func Run(controls *Controls, status func() recorder.Status) *tea.Program {
	return tea.NewProgram(NewModel(controls, status), tea.WithAltScreen())
}

// Listener forwards recorder events to p
func Listener(p *tea.Program) recorder.Listener {
	return func(ev recorder.Event) {
		go p.Send(EventMsg{Event: ev})
	}
}
