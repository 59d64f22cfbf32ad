// Package events is the domain event bus: a pub/sub broadcaster that
// decouples the state service (the publisher of analysis progress) from
// the SSE handler (the consumer). It generalizes the teacher logger's
// Subscribe/broadcastLoop pattern from log lines to typed Event values, and
// is deliberately kept separate from internal/logger: logging is an
// operational concern, this bus is a domain one.
package events

import (
	"sync"

	"github.com/northbound/codewatch/internal/model"
)

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindProgress Kind = "progress"
	KindStage    Kind = "stage"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one broadcastable occurrence against a single analysis.
type Event struct {
	AnalysisID string       `json:"analysis_id"`
	Kind       Kind         `json:"kind"`
	Track      model.Track  `json:"track,omitempty"`
	Status     string       `json:"status,omitempty"`
	Progress   int          `json:"progress,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// Bus fans analysis events out to any number of subscribers, each filtered
// to the analysis it cares about. Subscribers that fall behind have events
// dropped for them rather than blocking the publisher, same as the
// teacher's non-blocking broadcast select.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]string // chan -> analysisID filter ("" == all)
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]string)}
}

// Subscribe returns a channel that receives every future event whose
// AnalysisID matches analysisID. Callers must call Unsubscribe when done to
// avoid leaking the channel and its goroutine-side buffer.
func (b *Bus) Subscribe(analysisID string) <-chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subscribers[ch] = analysisID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subscribers {
		if c == ch {
			delete(b.subscribers, c)
			close(c)
			return
		}
	}
}

// Publish fans out ev to every subscriber whose filter matches. Delivery is
// non-blocking: a subscriber whose buffer is full silently misses the
// event, since SSE clients can always re-fetch full-status on reconnect.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filter := range b.subscribers {
		if filter != "" && filter != ev.AnalysisID {
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every live subscriber channel. Used on server shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan Event]string)
}
