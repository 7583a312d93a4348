// ABOUTME: Bubbletea model for the recorder TUI
// ABOUTME: Shows source, capture and transcode state and maps keys to actions
package ui

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const statusInterval = 250 * time.Millisecond

var (
	recordingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

// jobLine is one transcode row
type jobLine struct {
	id       string
	codec    string
	progress float64
	done     bool
	output   string
	err      string
}

// Model represents the TUI state
type Model struct {
	// Source
	sourceName string
	title      string
	artist     string
	album      string
	sampleRate int
	channels   int

	// Capture
	captureState string
	sessionID    string
	capturePath  string
	captured     int64
	duration     time.Duration

	// Transcodes
	jobs      []jobLine
	lastEvent string

	// Playback
	volume int
	muted  bool
	chunks int64

	showDebug bool
	width     int
	height    int

	controls *Controls
	status   func() recorder.Status
}

// Init starts the status refresh
func (m Model) Init() tea.Cmd {
	if m.status == nil {
		return nil
	}
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	status := m.status
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		return StatusMsg{Status: status()}
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SourceMsg:
		m.applySource(msg)
	case StatusMsg:
		m.applyStatus(msg.Status)
		if m.status != nil {
			return m, m.tick()
		}
	case EventMsg:
		m.applyEvent(msg.Event)
	case ChunkMsg:
		m.chunks += int64(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderSource()
	s += m.renderCapture()
	s += m.renderJobs()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

func (m Model) renderHeader() string {
	label := fmt.Sprintf("%-43s", captureLabel(m.captureState))
	if m.captureState == "armed" {
		label = recordingStyle.Render(label)
	}
	return fmt.Sprintf(`┌─ Resonate Recorder ──────────────────────────────────┐
│ Capture: %s │
├──────────────────────────────────────────────────────┤
`, label)
}

func (m Model) renderSource() string {
	if m.sourceName == "" {
		return "│ No source                                            │\n"
	}

	s := fmt.Sprintf("│ Source: %-44s │\n", truncate(m.sourceName, 44))
	if m.title != "" {
		s += fmt.Sprintf("│   Track:  %-42s │\n", truncate(m.title, 42))
		s += fmt.Sprintf("│   Artist: %-42s │\n", truncate(m.artist, 42))
		s += fmt.Sprintf("│   Album:  %-42s │\n", truncate(m.album, 42))
	}
	if m.sampleRate > 0 {
		s += fmt.Sprintf("│ Format: %-44s │\n",
			fmt.Sprintf("PCM %dHz %s 16-bit", m.sampleRate, channelName(m.channels)))
	}

	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}
	s += fmt.Sprintf("│ Volume: [%s] %-31s │\n", renderBar(m.volume, 100, 10), fmt.Sprintf("%d%%%s", m.volume, muteIcon))
	return s
}

func (m Model) renderCapture() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if m.sessionID == "" {
		return s + "│ Not recording                                        │\n"
	}
	s += fmt.Sprintf("│ File:     %-42s │\n", truncate(filepath.Base(m.capturePath), 42))
	s += fmt.Sprintf("│ Captured: %-42s │\n",
		fmt.Sprintf("%s (%s)", formatBytes(m.captured), m.duration.Truncate(100*time.Millisecond)))
	return s
}

func (m Model) renderJobs() string {
	if len(m.jobs) == 0 && m.lastEvent == "" {
		return ""
	}
	s := "├──────────────────────────────────────────────────────┤\n"
	for _, j := range m.jobs {
		state := renderBar(int(j.progress), 100, 20) + fmt.Sprintf(" %3.0f%%", j.progress)
		switch {
		case j.err != "":
			state = "failed: " + j.err
		case j.done:
			state = "done " + filepath.Base(j.output)
		}
		s += fmt.Sprintf("│ %-6s %-45s │\n", j.codec, truncate(state, 45))
	}
	if m.lastEvent != "" {
		s += fmt.Sprintf("│ %-52s │\n", truncate(m.lastEvent, 52))
	}
	return s
}

func (m Model) renderHelp() string {
	return "└──────────────────────────────────────────────────────┘\n" +
		helpStyle.Render("c:Record  s:Stop  t:Stop+Transcode  ↑/↓:Vol  m:Mute  d:Debug  q:Quit") + "\n"
}

func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Session: %-41s │
│   Chunks:  %-41d │
`, truncate(m.sessionID, 41), m.chunks)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "c":
		m.controls.capture(ActionStart)
	case "s":
		m.controls.capture(ActionStop)
	case "t":
		m.controls.capture(ActionStopAndTranscode)
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.volume(m.volume, m.muted)
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.volume(m.volume, m.muted)
	case "m":
		m.muted = !m.muted
		m.controls.volume(m.volume, m.muted)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) applySource(msg SourceMsg) {
	m.sourceName = msg.Name
	m.title = msg.Title
	m.artist = msg.Artist
	m.album = msg.Album
	m.sampleRate = msg.SampleRate
	m.channels = msg.Channels
}

// applyStatus replaces capture state and merges job progress
func (m *Model) applyStatus(st recorder.Status) {
	m.captureState = st.Capture.State.String()
	m.sessionID = ""
	m.capturePath = ""
	if st.Capture.State == tap.StateArmed {
		m.sessionID = st.Capture.SessionID
		m.capturePath = st.Capture.Path
	}
	m.captured = st.Capture.BytesCaptured
	m.duration = st.Duration

	for _, js := range st.Jobs {
		line := m.job(js.ID, string(js.Codec))
		line.progress = js.Progress
		line.done = js.Done
		line.output = js.Output
		line.err = js.Error
	}
}

func (m *Model) applyEvent(ev recorder.Event) {
	switch ev.Type {
	case recorder.EventCaptureStarted:
		m.captureState = "armed"
		m.sessionID = ev.SessionID
		m.capturePath = ev.Path
		m.captured = 0
		m.lastEvent = "Recording " + filepath.Base(ev.Path)
	case recorder.EventCaptureStopped:
		m.captureState = "closed"
		m.sessionID = ""
		if ev.Record != nil {
			m.lastEvent = fmt.Sprintf("Saved %s (%s)", filepath.Base(ev.Path), ev.Record.Duration().Truncate(100*time.Millisecond))
		}
	case recorder.EventTranscodeProgress:
		m.job(ev.JobID, "").progress = ev.Progress
	case recorder.EventTranscodeDone:
		line := m.job(ev.JobID, "")
		line.progress = 100
		line.done = true
		line.output = ev.Path
	case recorder.EventTranscodeFailed:
		line := m.job(ev.JobID, "")
		line.done = true
		if ev.Err != nil {
			line.err = ev.Err.Error()
		}
	case recorder.EventArchived:
		m.lastEvent = "Archived " + ev.URL
	}
}

// job returns the row for id, adding it if needed. Rows stay sorted by ID.
func (m *Model) job(id, codec string) *jobLine {
	for i := range m.jobs {
		if m.jobs[i].id == id {
			if codec != "" {
				m.jobs[i].codec = codec
			}
			return &m.jobs[i]
		}
	}
	m.jobs = append(m.jobs, jobLine{id: id, codec: codec})
	sort.Slice(m.jobs, func(i, k int) bool { return m.jobs[i].id < m.jobs[k].id })
	for i := range m.jobs {
		if m.jobs[i].id == id {
			return &m.jobs[i]
		}
	}
	return nil
}

// StatusMsg carries a recorder snapshot
type StatusMsg struct {
	Status recorder.Status
}

// EventMsg carries one recorder event
type EventMsg struct {
	Event recorder.Event
}

// SourceMsg describes the playing source
type SourceMsg struct {
	Name       string
	Title      string
	Artist     string
	Album      string
	SampleRate int
	Channels   int
}

// ChunkMsg counts rendered chunks
type ChunkMsg int

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
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

func captureLabel(state string) string {
	switch state {
	case "armed":
		return "● Recording"
	case "finalizing":
		return "Finalizing"
	default:
		return "Idle"
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
