package core

// Client is one live connection as seen by the core layer.
type Client struct {
	// ConnID uniquely identifies the transport connection.
	ConnID    string
	Principal Principal
	Commands  chan *Command
	Events    chan *Event

	// rooms is the set of group IDs this connection is subscribed to.
	// Owned by the hub; never touched outside hub methods.
	rooms map[string]struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, p Principal) *Client {
	return &Client{
		ConnID:    connID,
		Principal: p,
		Commands:  make(chan *Command, 8),
		Events:    make(chan *Event, 8),
		rooms:     make(map[string]struct{}),
	}
}
