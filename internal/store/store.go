package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	Online       bool
	ConnID       string // current connection handle, empty when offline
	CreatedAt    time.Time
}

// Room represents a chat group: either a multi-party group or an
// exactly-two-party direct conversation.
type Room struct {
	ID        int64
	GroupID   string // stable opaque address used on the wire (uuid)
	Name      string
	IsGroup   bool
	AdminID   *int64 // nil for direct rooms
	CreatedAt time.Time
}

// ContentKind classifies message content.
type ContentKind string

const (
	ContentKindText  ContentKind = "text"
	ContentKindImage ContentKind = "image"
	ContentKindFile  ContentKind = "file"
)

// Message represents a persisted chat message.
type Message struct {
	ID          int64
	GroupID     string
	SenderID    int64
	Content     string
	ContentKind ContentKind
	CreatedAt   time.Time
	SeenBy      []int64
}

// UserStore handles user persistence and presence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, fullName, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// UpdateEmail replaces a user's email address.
	UpdateEmail(ctx context.Context, id int64, email string) error

	// UpdateFullName replaces a user's display name.
	UpdateFullName(ctx context.Context, id int64, fullName string) error

	// UpdatePresence sets the online flag and current connection id.
	UpdatePresence(ctx context.Context, userID int64, online bool, connID string) error

	// SearchUsers searches for users by username prefix/substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// RoomStore handles chat group persistence.
type RoomStore interface {
	// CreateGroup creates a group room. The admin is always a member.
	CreateGroup(ctx context.Context, groupID, name string, adminID int64, memberIDs []int64) (*Room, error)

	// CreateDirectRoom creates a direct room between two users, or returns
	// the existing one. Deduplicated via directKey; both users become members.
	CreateDirectRoom(ctx context.Context, directKey, groupID, name string, user1ID, user2ID int64) (*Room, error)

	// GetRoomByGroupID retrieves a room by its wire address.
	GetRoomByGroupID(ctx context.Context, groupID string) (*Room, error)

	// RenameRoom replaces a room's name.
	RenameRoom(ctx context.Context, roomID int64, name string) error

	// ListRoomsForUser lists rooms the user is a member of.
	ListRoomsForUser(ctx context.Context, userID int64) ([]*Room, error)

	// AddMembers adds users to a room; already-present users are skipped.
	AddMembers(ctx context.Context, roomID int64, userIDs []int64) error

	// RemoveMember removes a user from a room.
	RemoveMember(ctx context.Context, roomID, userID int64) error

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)

	// ListMembers lists all members of a room, oldest join first.
	ListMembers(ctx context.Context, roomID int64) ([]*User, error)

	// DeleteRoom removes a room, its membership and its messages.
	DeleteRoom(ctx context.Context, roomID int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage appends a message, assigning its id (and timestamp if
	// unset). The append order is authoritative for concurrent sends.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages pages a group's history newest first. Page and limit
	// start at 1; page p skips (p-1)*limit records. Equal timestamps are
	// tie-broken by insertion order, so pages are stable and non-overlapping.
	ListMessages(ctx context.Context, groupID string, page, limit int) ([]*Message, error)

	// AddSeen records that the user has seen the message and returns the
	// updated row. Idempotent; ErrNotFound if the message does not exist.
	AddSeen(ctx context.Context, messageID, userID int64) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
