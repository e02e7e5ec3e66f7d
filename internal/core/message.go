package core

import "time"

// Principal is the authenticated user identity attached to a connection.
type Principal struct {
	ID       int64
	Username string
	FullName string
}

// Message is the domain model for a chat message.
// Once persisted, everything but SeenBy is immutable.
type Message struct {
	ID          int64
	GroupID     string
	SenderID    int64
	Content     string
	ContentKind string
	CreatedAt   time.Time
	SeenBy      []int64
}
