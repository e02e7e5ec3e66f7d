package sqlite

import "database/sql"

// schema is applied on open. Statements are idempotent so reopening an
// existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	online_status BOOLEAN NOT NULL DEFAULT 0,
	conn_id       TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id   TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	is_group   BOOLEAN NOT NULL DEFAULT 1,
	admin_id   INTEGER,
	direct_key TEXT UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (admin_id) REFERENCES users(id)
);

-- Group names are unique among group rooms only; derived direct-chat
-- names share the column but not the namespace.
CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_group_name ON rooms(name) WHERE is_group = 1;

CREATE TABLE IF NOT EXISTS room_members (
	room_id   INTEGER NOT NULL,
	user_id   INTEGER NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id     TEXT NOT NULL,
	sender_id    INTEGER NOT NULL,
	content      TEXT NOT NULL,
	content_kind TEXT NOT NULL DEFAULT 'text',
	created_at   DATETIME NOT NULL,
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS message_seen (
	message_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);
`

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
