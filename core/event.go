package core

import (
	"encoding/json"
	"time"
)

// EventType enumerates the records of a run's client-facing stream.
type EventType string

const (
	// EventProgress is advisory narration; never the source of truth.
	EventProgress EventType = "progress"
	// EventResponse is the terminal success record carrying the final answer.
	EventResponse EventType = "response"
	// EventError is the terminal failure record.
	EventError EventType = "error"
)

// Event is one record of the ordered stream a run emits. After emission it
// should be treated as immutable. Exactly one terminal event (response or
// error) is emitted per run and it is always the last one.
//
// Only the fields relevant for the Type are serialized:
//
//	{"type":"progress","step":i,"total":N,"message":str}
//	{"type":"response","content":str}
//	{"type":"error","message":str}
type Event struct {
	Type      EventType `json:"type"`
	Step      int       `json:"step,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	Content   string    `json:"content,omitempty"`
	RunID     string    `json:"-"`
	Timestamp time.Time `json:"-"`
}

// NewProgressEvent creates the narration record for step (1-based) of total.
func NewProgressEvent(runID string, step, total int, message string) Event {
	return Event{Type: EventProgress, Step: step, Total: total, Message: message, RunID: runID, Timestamp: time.Now().UTC()}
}

// NewResponseEvent creates the terminal success record.
func NewResponseEvent(runID, content string) Event {
	return Event{Type: EventResponse, Content: content, RunID: runID, Timestamp: time.Now().UTC()}
}

// NewErrorEvent creates the terminal failure record from err.
func NewErrorEvent(runID string, err error) Event {
	return Event{Type: EventError, Message: err.Error(), RunID: runID, Timestamp: time.Now().UTC()}
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool { return e.Type == EventResponse || e.Type == EventError }

// MarshalJSON renders the wire shape for the event type. A response always
// carries its content field, even when empty.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Step    int       `json:"step"`
			Total   int       `json:"total"`
			Message string    `json:"message"`
		}{e.Type, e.Step, e.Total, e.Message})
	case EventResponse:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	default:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}
}
