package domain

import "time"

type EventType string

const (
	EventMessage  EventType = "message"
	EventAssigned EventType = "assigned"
	EventClosed   EventType = "closed"
	EventJoined   EventType = "joined"
	EventLeft     EventType = "left"
	EventError    EventType = "error"
)

// Event is the in-process object handed from the gateway to the connection
// registry and written to live sessions as-is.
type Event struct {
	Type       EventType  `json:"type"`
	QuestionId QuestionId `json:"question_id"`
	UserId     UserId     `json:"user_id,omitempty"` // subject of presence/assignment events
	Message    *Message   `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

func NewMessageEvent(msg Message) Event {
	return Event{Type: EventMessage, QuestionId: msg.QuestionId, Message: &msg, At: msg.CreatedAt}
}

// EventSender is one live connection's transport handle. Send must be
// bounded: a stalled peer is reported as an error, not waited on.
type EventSender interface {
	Send(ev Event) error
	Close() error
}
