// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, recorder events and key actions
package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, nil)

	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}
	if model.captureState != "idle" {
		t.Errorf("expected idle capture, got %q", model.captureState)
	}
	if model.Init() != nil {
		t.Error("expected no refresh without a status func")
	}
}

func TestCaptureKeys(t *testing.T) {
	tests := []struct {
		key  string
		want CaptureAction
	}{
		{"c", ActionStart},
		{"s", ActionStop},
		{"t", ActionStopAndTranscode},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			controls := NewControls()
			model := NewModel(controls, nil)
			model.Update(key(tt.key))

			select {
			case got := <-controls.Capture:
				if got != tt.want {
					t.Errorf("action = %v, want %v", got, tt.want)
				}
			default:
				t.Fatal("no capture action sent")
			}
		})
	}
}

func TestVolumeKeys(t *testing.T) {
	controls := NewControls()
	var m tea.Model = NewModel(controls, nil)

	m, _ = m.Update(key("up"))
	if got := m.(Model).volume; got != 100 {
		t.Errorf("volume clamped = %d, want 100", got)
	}
	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("m"))

	if got := m.(Model); got.volume != 95 || !got.muted {
		t.Errorf("model volume=%d muted=%v", got.volume, got.muted)
	}

	var last VolumeChangeMsg
	for len(controls.Volume) > 0 {
		last = <-controls.Volume
	}
	if last.Volume != 95 || !last.Muted {
		t.Errorf("last volume change = %+v", last)
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	_, cmd := NewModel(controls, nil).Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if len(controls.Quit) != 1 {
		t.Error("expected quit signal")
	}
}

func TestNilControls(t *testing.T) {
	model := NewModel(nil, nil)
	for _, k := range []string{"c", "s", "t", "up", "m"} {
		model.Update(key(k))
	}
}

func TestApplyStatus(t *testing.T) {
	model := NewModel(nil, nil)
	model.applyStatus(recorder.Status{
		Capture:  tap.Stats{State: tap.StateArmed, SessionID: "abc", Path: "/tmp/capture-abc.wav", BytesCaptured: 2048},
		Duration: 1500 * time.Millisecond,
		Jobs: []recorder.JobStatus{
			{ID: "b", Codec: recorder.CodecOpus, Progress: 40},
			{ID: "a", Codec: recorder.CodecVorbis, Done: true, Output: "/tmp/a.ogg"},
		},
	})

	if model.sessionID != "abc" || model.captured != 2048 {
		t.Errorf("capture fields = %q %d", model.sessionID, model.captured)
	}
	if len(model.jobs) != 2 || model.jobs[0].id != "a" || model.jobs[1].progress != 40 {
		t.Errorf("jobs = %+v", model.jobs)
	}

	model.applyStatus(recorder.Status{Capture: tap.Stats{State: tap.StateClosed, SessionID: "abc"}})
	if model.sessionID != "" {
		t.Error("closed capture should clear the session")
	}
}

func TestApplyEvents(t *testing.T) {
	model := NewModel(nil, nil)
	rec := audio.Record{SampleRate: 8000, BytesPerFrame: 2, Channels: 1, BodyBytes: 16000}

	model.applyEvent(recorder.Event{Type: recorder.EventCaptureStarted, SessionID: "s1", Path: "/tmp/capture-s1.wav"})
	if model.captureState != "armed" || model.sessionID != "s1" {
		t.Errorf("after start: %q %q", model.captureState, model.sessionID)
	}

	model.applyEvent(recorder.Event{Type: recorder.EventCaptureStopped, Path: "/tmp/capture-s1.wav", Record: &rec})
	if model.sessionID != "" || !strings.Contains(model.lastEvent, "1s") {
		t.Errorf("after stop: %q %q", model.sessionID, model.lastEvent)
	}

	model.applyEvent(recorder.Event{Type: recorder.EventTranscodeProgress, JobID: "j1", Progress: 55})
	model.applyEvent(recorder.Event{Type: recorder.EventTranscodeFailed, JobID: "j2", Err: errors.New("codec timeout")})
	model.applyEvent(recorder.Event{Type: recorder.EventTranscodeDone, JobID: "j1", Path: "/tmp/capture-s1.ogg"})

	if len(model.jobs) != 2 {
		t.Fatalf("jobs = %+v", model.jobs)
	}
	if j := model.jobs[0]; !j.done || j.progress != 100 || j.output != "/tmp/capture-s1.ogg" {
		t.Errorf("j1 = %+v", j)
	}
	if j := model.jobs[1]; !j.done || j.err != "codec timeout" {
		t.Errorf("j2 = %+v", j)
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, nil)
	if model.View() != "Loading..." {
		t.Error("expected loading view before the first resize")
	}

	var m tea.Model = model
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(SourceMsg{Name: "song.mp3", Title: "Song", SampleRate: 44100, Channels: 2})
	m, _ = m.Update(EventMsg{Event: recorder.Event{Type: recorder.EventCaptureStarted, SessionID: "s1", Path: "/tmp/capture-s1.wav"}})

	view := m.View()
	for _, want := range []string{"Resonate Recorder", "song.mp3", "44100Hz Stereo", "Recording", "capture-s1.wav"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
