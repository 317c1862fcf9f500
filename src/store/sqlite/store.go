// Package sqlite implements the storage service over a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harborchat/harbor/src/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT    NOT NULL UNIQUE,
	email         TEXT    NOT NULL DEFAULT '',
	password_hash TEXT    NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS friendships (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user1_id   INTEGER NOT NULL REFERENCES users(id),
	user2_id   INTEGER NOT NULL REFERENCES users(id),
	created_at INTEGER NOT NULL,
	UNIQUE (user1_id, user2_id)
);

CREATE TABLE IF NOT EXISTS friend_requests (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   INTEGER NOT NULL REFERENCES users(id),
	receiver_id INTEGER NOT NULL REFERENCES users(id),
	status      TEXT    NOT NULL DEFAULT 'pending',
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL DEFAULT '',
	room_type  TEXT    NOT NULL CHECK (room_type IN ('anonymous', 'private', 'group')),
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id INTEGER NOT NULL REFERENCES chat_rooms(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_room_id   INTEGER NOT NULL REFERENCES chat_rooms(id),
	sender_id      INTEGER REFERENCES users(id),
	anonymous_name TEXT    NOT NULL DEFAULT '',
	content        TEXT    NOT NULL,
	timestamp      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages (chat_room_id, timestamp);
`

// Store implements chat persistence over SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite store at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

// fromMillis restores millisecond precision and UTC normalization.
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// CreateUser registers a new account.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (store.User, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, toMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return store.User{}, store.ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.User{}, fmt.Errorf("user id: %w", err)
	}
	return store.User{ID: id, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: now.UTC()}, nil
}

// UserByUsername fetches an account by username.
func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`, username))
}

// UserByID fetches an account by id.
func (s *Store) UserByID(ctx context.Context, id int64) (store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (store.User, error) {
	var u store.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrUserNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

// SearchUsers returns up to 20 users matching query by username or email,
// excluding the searcher, each annotated with their friendship status.
func (s *Store) SearchUsers(ctx context.Context, selfID int64, query string) ([]store.UserSearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email FROM users
		 WHERE (username LIKE ? OR email LIKE ?) AND id != ?
		 ORDER BY username LIMIT 20`,
		pattern, pattern, selfID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var results []store.UserSearchResult
	for rows.Next() {
		var r store.UserSearchResult
		if err := rows.Scan(&r.ID, &r.Username, &r.Email); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	for i := range results {
		status, err := s.friendshipStatus(ctx, selfID, results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].FriendshipStatus = status
	}
	return results, nil
}

func (s *Store) friendshipStatus(ctx context.Context, selfID, otherID int64) (string, error) {
	friends, err := s.AreFriends(ctx, selfID, otherID)
	if err != nil {
		return "", err
	}
	if friends {
		return store.StatusFriend, nil
	}

	var senderID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT sender_id FROM friend_requests
		 WHERE status = 'pending'
		   AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`,
		selfID, otherID, otherID, selfID).Scan(&senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.StatusNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("pending request lookup: %w", err)
	}
	if senderID == selfID {
		return store.StatusRequestSent, nil
	}
	return store.StatusRequestReceived, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
