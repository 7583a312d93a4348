// ABOUTME: Session events and the tagged listener registry
// ABOUTME: Listeners are notified synchronously in registration order
package recorder

import (
	"sort"
	"sync"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// EventType names a session notification
type EventType string

const (
	EventCaptureStarted    EventType = "capture/started"
	EventCaptureStopped    EventType = "capture/stopped"
	EventTranscodeProgress EventType = "transcode/progress"
	EventTranscodeDone     EventType = "transcode/done"
	EventTranscodeFailed   EventType = "transcode/failed"
	EventArchived          EventType = "archive/uploaded"
)

// Event is delivered to every registered listener
type Event struct {
	Type      EventType
	SessionID string
	JobID     string
	Path      string
	Progress  float64
	Record    *audio.Record
	URL       string
	Err       error
}

// Listener receives session events. It must not block.
type Listener func(Event)

type registry struct {
	mu        sync.RWMutex
	seq       int
	listeners map[string]entry
}

type entry struct {
	seq int
	fn  Listener
}

func (r *registry) add(tag string, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[string]entry)
	}
	r.seq++
	r.listeners[tag] = entry{seq: r.seq, fn: fn}
}

func (r *registry) remove(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[tag]
	delete(r.listeners, tag)
	return ok
}

func (r *registry) broadcast(ev Event) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.listeners))
	for _, e := range r.listeners {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		e.fn(ev)
	}
}
