package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chatline/chatline-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, applySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, full_name, email, password_hash, online_status, conn_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Online,
		&user.ConnID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, fullName, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, full_name, email, password_hash)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, fullName, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UpdatePassword replaces a user's password hash.
func (s *SQLiteStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// UpdateEmail replaces a user's email address.
func (s *SQLiteStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// UpdateFullName replaces a user's display name.
func (s *SQLiteStore) UpdateFullName(ctx context.Context, id int64, fullName string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET full_name = ? WHERE id = ?`, fullName, id)
	if err != nil {
		return fmt.Errorf("update full name: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// UpdatePresence sets the online flag and current connection id.
func (s *SQLiteStore) UpdatePresence(ctx context.Context, userID int64, online bool, connID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET online_status = ?, conn_id = ? WHERE id = ?`,
		online, connID, userID,
	)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username LIKE ? ORDER BY username ASC LIMIT 50`
	rows, err := s.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ==== RoomStore implementation ====

func scanRoom(row interface{ Scan(...any) error }) (*store.Room, error) {
	var room store.Room
	var adminID sql.NullInt64
	err := row.Scan(
		&room.ID,
		&room.GroupID,
		&room.Name,
		&room.IsGroup,
		&adminID,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if adminID.Valid {
		room.AdminID = &adminID.Int64
	}
	return &room, nil
}

const roomColumns = `id, group_id, name, is_group, admin_id, created_at`

// CreateGroup creates a group room with the admin as first member.
func (s *SQLiteStore) CreateGroup(ctx context.Context, groupID, name string, adminID int64, memberIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (group_id, name, is_group, admin_id) VALUES (?, ?, 1, ?)`,
		groupID, name, adminID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, adminID); err != nil {
		return nil, fmt.Errorf("add admin to members: %w", err)
	}
	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx, memberQuery, roomID, userID); err != nil {
			return nil, fmt.Errorf("add member %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByGroupID(ctx, groupID)
}

// CreateDirectRoom creates a direct room between two users, or returns the
// existing one for the same pair.
func (s *SQLiteStore) CreateDirectRoom(ctx context.Context, directKey, groupID, name string, user1ID, user2ID int64) (*store.Room, error) {
	room, err := s.getRoomByDirectKey(ctx, directKey)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing room: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (group_id, name, is_group, admin_id, direct_key) VALUES (?, ?, 0, NULL, ?)`,
		groupID, name, directKey,
	)
	if err != nil {
		// A racing creator got there between the check and the insert;
		// the direct key conflict means their room is the one to return.
		if strings.Contains(err.Error(), "UNIQUE") {
			_ = tx.Rollback()
			return s.getRoomByDirectKey(ctx, directKey)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	memberQuery := `
		INSERT INTO room_members (room_id, user_id)
		SELECT id, ? FROM rooms WHERE group_id = ?
	`
	if _, err := tx.ExecContext(ctx, memberQuery, user1ID, groupID); err != nil {
		return nil, fmt.Errorf("add user1 to members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, memberQuery, user2ID, groupID); err != nil {
		return nil, fmt.Errorf("add user2 to members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByGroupID(ctx, groupID)
}

func (s *SQLiteStore) getRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE direct_key = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, directKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", directKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// GetRoomByGroupID retrieves a room by its wire address.
func (s *SQLiteStore) GetRoomByGroupID(ctx context.Context, groupID string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE group_id = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", groupID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// RenameRoom replaces a room's name.
func (s *SQLiteStore) RenameRoom(ctx context.Context, roomID int64, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rooms SET name = ? WHERE id = ?`, name, roomID)
	if err != nil {
		return fmt.Errorf("rename room: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	return nil
}

// ListRoomsForUser lists rooms the user is a member of, newest first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	query := `
		SELECT r.id, r.group_id, r.name, r.is_group, r.admin_id, r.created_at
		FROM rooms r
		JOIN room_members rm ON r.id = rm.room_id
		WHERE rm.user_id = ?
		ORDER BY r.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*store.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// AddMembers adds users to a room; already-present users are skipped.
func (s *SQLiteStore) AddMembers(ctx context.Context, roomID int64, userIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, query, roomID, userID); err != nil {
			return fmt.Errorf("insert room member %d: %w", userID, err)
		}
	}

	return tx.Commit()
}

// RemoveMember removes a user from a room.
func (s *SQLiteStore) RemoveMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete room member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMembers lists all members of a room, oldest join first.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]*store.User, error) {
	query := `
		SELECT u.id, u.username, u.full_name, u.email, u.password_hash, u.online_status, u.conn_id, u.created_at
		FROM users u
		JOIN room_members rm ON u.id = rm.user_id
		WHERE rm.room_id = ?
		ORDER BY rm.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, user)
	}

	return members, rows.Err()
}

// DeleteRoom removes a room, its membership and its messages.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var groupID string
	err = tx.QueryRowContext(ctx, `SELECT group_id FROM rooms WHERE id = ?`, roomID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
		}
		return fmt.Errorf("query room: %w", err)
	}

	steps := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM message_seen WHERE message_id IN (SELECT id FROM messages WHERE group_id = ?)`, []any{groupID}},
		{`DELETE FROM messages WHERE group_id = ?`, []any{groupID}},
		{`DELETE FROM room_members WHERE room_id = ?`, []any{roomID}},
		{`DELETE FROM rooms WHERE id = ?`, []any{roomID}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
	}

	return tx.Commit()
}

// ==== MessageStore implementation ====

// SaveMessage appends a message, assigning its id.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ContentKind == "" {
		msg.ContentKind = store.ContentKindText
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (group_id, sender_id, content, content_kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.GroupID, msg.SenderID, msg.Content, msg.ContentKind, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages pages a group's history newest first. Equal timestamps are
// tie-broken by insertion order (autoincrement id).
func (s *SQLiteStore) ListMessages(ctx context.Context, groupID string, page, limit int) ([]*store.Message, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("page and limit must be >= 1, got page=%d limit=%d", page, limit)
	}

	query := `
		SELECT id, group_id, sender_id, content, content_kind, created_at
		FROM messages
		WHERE group_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, groupID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Content, &msg.ContentKind, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadSeen(ctx, messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// AddSeen records that the user has seen the message. Idempotent.
func (s *SQLiteStore) AddSeen(ctx context.Context, messageID, userID int64) (*store.Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", messageID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_seen (message_id, user_id) VALUES (?, ?)`,
		messageID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert seen: %w", err)
	}

	return s.getMessage(ctx, messageID)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, group_id, sender_id, content, content_kind, created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Content, &msg.ContentKind, &msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	if err := s.loadSeen(ctx, []*store.Message{&msg}); err != nil {
		return nil, err
	}

	return &msg, nil
}

// loadSeen fills the SeenBy sets for a batch of messages in one query.
func (s *SQLiteStore) loadSeen(ctx context.Context, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*store.Message, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := make([]any, 0, len(messages))
	for _, msg := range messages {
		msg.SeenBy = []int64{}
		byID[msg.ID] = msg
		placeholders = append(placeholders, "?")
		args = append(args, msg.ID)
	}

	query := `
		SELECT message_id, user_id FROM message_seen
		WHERE message_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY message_id, user_id
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query seen: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID int64
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("scan seen: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.SeenBy = append(msg.SeenBy, userID)
		}
	}

	return rows.Err()
}
