package types

import "time"

// EventType is the closed set of realtime event tags. Routing switches over
// these exhaustively; unknown inbound tags are dropped, never dispatched.
type EventType string

const (
	EventUserJoined   EventType = "user_joined"
	EventUserLeft     EventType = "user_left"
	EventChatMessage  EventType = "chat_message"
	EventTyping       EventType = "typing"
	EventSessionEnded EventType = "session_ended"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventUserJoined, EventUserLeft, EventChatMessage, EventTyping, EventSessionEnded:
		return true
	}
	return false
}

// Event is the outbound wire shape delivered to group members. Only the
// fields relevant to the event type are populated; constructors below are
// the supported way to build one.
type Event struct {
	Type      EventType          `json:"type"`
	User      *Identity          `json:"user,omitempty"`
	Sender    string             `json:"sender,omitempty"`
	Message   string             `json:"message,omitempty"`
	IsTyping  *bool              `json:"is_typing,omitempty"`
	Timestamp string             `json:"timestamp,omitempty"`
	Summary   *SettlementSummary `json:"summary,omitempty"`
}

// InboundEvent is the client-to-server shape for the chat channel.
type InboundEvent struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message"`
	IsTyping bool      `json:"is_typing"`
}

func NewUserJoined(user Identity) Event {
	return Event{Type: EventUserJoined, User: &user}
}

func NewUserLeft(user Identity) Event {
	return Event{Type: EventUserLeft, User: &user}
}

func NewChatMessage(sender, message string, at time.Time) Event {
	return Event{
		Type:      EventChatMessage,
		Sender:    sender,
		Message:   message,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func NewTyping(user Identity, isTyping bool) Event {
	return Event{Type: EventTyping, User: &user, IsTyping: &isTyping}
}

func NewSessionEnded(summary *SettlementSummary) Event {
	return Event{Type: EventSessionEnded, Summary: summary}
}
