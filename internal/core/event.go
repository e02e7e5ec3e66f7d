package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage delivers a stored chat message to group subscribers.
	EventNewMessage EventKind = iota
	// EventUserTyping notifies a group that a user started typing.
	EventUserTyping
	// EventUserStopTyping notifies a group that a user stopped typing.
	EventUserStopTyping
	// EventMessageSeen notifies a group that a user has seen a message.
	EventMessageSeen
	// EventUserOnline notifies all connections that a user came online.
	EventUserOnline
	// EventUserOffline notifies all connections that a user went offline.
	EventUserOffline
	// EventError reports a per-event failure to the originating connection.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind

	// GroupID is set for room-scoped events.
	GroupID string

	// UserID identifies the acting user for typing, seen and presence events.
	UserID int64

	// MessageID is set for EventMessageSeen.
	MessageID int64

	// Message is set for EventNewMessage.
	Message *Message

	// Error is set for EventError.
	Error *CoreError
}
