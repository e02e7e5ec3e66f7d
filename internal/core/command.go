package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinGroups subscribes the connection to one or more chat groups.
	CommandJoinGroups CommandKind = iota
	// CommandSendMessage persists a chat message and delivers it to the group.
	CommandSendMessage
	// CommandTyping tells other group members the user started typing.
	CommandTyping
	// CommandStopTyping tells other group members the user stopped typing.
	CommandStopTyping
	// CommandMarkSeen records that the user has seen a message.
	CommandMarkSeen
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// GroupIDs is set for CommandJoinGroups.
	GroupIDs []string

	// GroupID targets a single chat group for the remaining kinds.
	GroupID string

	// Content and ContentKind are set for CommandSendMessage.
	Content     string
	ContentKind string

	// MessageID is set for CommandMarkSeen.
	MessageID int64
}
