package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType names what happened in a session
type EventType string

const (
	SearchPublished EventType = "search.published"
	SearchFailed    EventType = "search.failed"
	HistoryLoaded   EventType = "history.loaded"
	HistoryFailed   EventType = "history.failed"
)

// Event is a report emitted by the session controllers
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	CoinID     string    `json:"coin_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Reporter accepts events without blocking the caller
type Reporter interface {
	Report(event Event)
}

// NopReporter discards every event
type NopReporter struct{}

func (NopReporter) Report(Event) {}

// stamp fills in the ID and timestamp when the caller left them empty
func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
