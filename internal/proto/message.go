package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for events coming from the client. Type carries
// the wire event name; the names are stable for client compatibility.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinGroup   = "join_group"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stop_typing"
	InboundTypeSeenMessage = "seen_message"

	OutboundEventNewMessage     = "new_message"
	OutboundEventUserTyping     = "user_typing"
	OutboundEventUserStopTyping = "user_stop_typing"
	OutboundEventMessageSeen    = "message_seen"
	OutboundEventUserOnline     = "user_online"
	OutboundEventUserOffline    = "user_offline"
	OutboundEventError          = "error"
)

// JoinGroupData subscribes the connection to its chat groups. Sent once
// after connect.
type JoinGroupData struct {
	GroupIDs []string `json:"groupIds"`
}

// SendMessageData is a chat message from the client. The sender is
// derived from the authenticated connection, never from the payload.
type SendMessageData struct {
	ChatgroupID string `json:"chatgroupId"`
	Content     string `json:"content"`
	ContentKind string `json:"contentKind,omitempty"`
}

// TypingData targets a chat group for typing indicator events.
type TypingData struct {
	ChatgroupID string `json:"chatgroupId"`
}

// SeenMessageData marks a message as seen by the sender of this event.
type SeenMessageData struct {
	ChatgroupID string `json:"chatgroupId"`
	MessageID   int64  `json:"messageId"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// StoredMessage is the full stored message as delivered in new_message.
type StoredMessage struct {
	ID          int64     `json:"id"`
	ChatgroupID string    `json:"chatgroupId"`
	Sender      int64     `json:"sender"`
	Content     string    `json:"content"`
	ContentKind string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
	SeenBy      []int64   `json:"seenBy"`
}

// TypingEvent notifies group members that a user is (or stopped) typing.
type TypingEvent struct {
	UserID int64 `json:"userId"`
}

// MessageSeenEvent notifies group members that a user has seen a message.
type MessageSeenEvent struct {
	UserID    int64 `json:"userId"`
	MessageID int64 `json:"messageId"`
}

// PresenceEvent announces a user going online or offline. Global, not
// room-scoped.
type PresenceEvent struct {
	UserID int64 `json:"userId"`
}
