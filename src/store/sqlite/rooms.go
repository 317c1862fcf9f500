package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harborchat/harbor/src/store"
	"github.com/harborchat/harbor/src/types"
)

// CreateAnonymousRoom creates an open room with no participant list.
func (s *Store) CreateAnonymousRoom(ctx context.Context, name string) (store.ChatRoom, error) {
	if name == "" {
		name = "Anonymous Chat"
	}
	return s.insertRoom(ctx, s.db, name, store.RoomTypeAnonymous, nil)
}

// CreateGroupRoom creates a closed group room with the creator as its first
// participant.
func (s *Store) CreateGroupRoom(ctx context.Context, name string, creatorID int64) (store.ChatRoom, error) {
	return s.insertRoom(ctx, s.db, name, store.RoomTypeGroup, []int64{creatorID})
}

// PrivateRoom returns the private room for a friend pair, creating it on
// first use. The pair must already be friends.
func (s *Store) PrivateRoom(ctx context.Context, a, b int64) (store.ChatRoom, error) {
	friends, err := s.AreFriends(ctx, a, b)
	if err != nil {
		return store.ChatRoom{}, err
	}
	if !friends {
		return store.ChatRoom{}, store.ErrNotFriends
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.ChatRoom{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	room, err := s.privateRoomTx(ctx, tx, a, b)
	if err != nil {
		return store.ChatRoom{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.ChatRoom{}, fmt.Errorf("commit: %w", err)
	}
	return room, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// privateRoomTx implements get-or-create for a pair's private room inside an
// existing transaction.
func (s *Store) privateRoomTx(ctx context.Context, tx execQuerier, a, b int64) (store.ChatRoom, error) {
	var room store.ChatRoom
	var createdAt int64
	err := tx.QueryRowContext(ctx,
		`SELECT r.id, r.name, r.room_type, r.is_active, r.created_at
		 FROM chat_rooms r
		 JOIN room_participants p1 ON p1.room_id = r.id AND p1.user_id = ?
		 JOIN room_participants p2 ON p2.room_id = r.id AND p2.user_id = ?
		 WHERE r.room_type = 'private'`,
		a, b).Scan(&room.ID, &room.Name, &room.Type, &room.IsActive, &createdAt)
	if err == nil {
		room.CreatedAt = fromMillis(createdAt)
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.ChatRoom{}, fmt.Errorf("private room lookup: %w", err)
	}
	return s.insertRoom(ctx, tx, "", store.RoomTypePrivate, []int64{a, b})
}

func (s *Store) insertRoom(ctx context.Context, db execQuerier, name, roomType string, participants []int64) (store.ChatRoom, error) {
	now := s.now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO chat_rooms (name, room_type, is_active, created_at) VALUES (?, ?, 1, ?)`,
		name, roomType, toMillis(now))
	if err != nil {
		return store.ChatRoom{}, fmt.Errorf("insert room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.ChatRoom{}, fmt.Errorf("room id: %w", err)
	}
	for _, userID := range participants {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id) VALUES (?, ?)`, id, userID); err != nil {
			return store.ChatRoom{}, fmt.Errorf("insert participant: %w", err)
		}
	}
	return store.ChatRoom{ID: id, Name: name, Type: roomType, IsActive: true, CreatedAt: now.UTC()}, nil
}

// AddParticipant adds a user to a closed room's participant list. Idempotent.
func (s *Store) AddParticipant(ctx context.Context, roomID, userID int64) error {
	room, err := s.roomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Type == store.RoomTypeAnonymous {
		return fmt.Errorf("anonymous rooms have no participant list")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_participants (room_id, user_id) VALUES (?, ?)`, roomID, userID)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// RoomsForUser lists the active closed rooms the user participates in.
func (s *Store) RoomsForUser(ctx context.Context, userID int64) ([]store.ChatRoom, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.room_type, r.is_active, r.created_at
		 FROM chat_rooms r
		 JOIN room_participants p ON p.room_id = r.id
		 WHERE p.user_id = ? AND r.is_active = 1
		 ORDER BY r.created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var roomList []store.ChatRoom
	for rows.Next() {
		var room store.ChatRoom
		var createdAt int64
		if err := rows.Scan(&room.ID, &room.Name, &room.Type, &room.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = fromMillis(createdAt)
		roomList = append(roomList, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return roomList, nil
}

func (s *Store) roomByID(ctx context.Context, roomID int64) (store.ChatRoom, error) {
	var room store.ChatRoom
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, room_type, is_active, created_at FROM chat_rooms WHERE id = ?`,
		roomID).Scan(&room.ID, &room.Name, &room.Type, &room.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ChatRoom{}, store.ErrRoomNotFound
	}
	if err != nil {
		return store.ChatRoom{}, fmt.Errorf("room lookup: %w", err)
	}
	room.CreatedAt = fromMillis(createdAt)
	return room, nil
}

// Lookup resolves a room to its delivery model. Participant ids are loaded
// for closed rooms only; open rooms have no durable membership.
func (s *Store) Lookup(ctx context.Context, roomID int64) (types.Room, error) {
	room, err := s.roomByID(ctx, roomID)
	if err != nil {
		return types.Room{}, err
	}
	out := types.Room{ID: room.ID, Name: room.Name, Kind: store.KindOf(room.Type)}
	if out.Kind == types.RoomOpen {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM room_participants WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return types.Room{}, fmt.Errorf("room participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return types.Room{}, fmt.Errorf("scan participant: %w", err)
		}
		out.Participants = append(out.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return types.Room{}, fmt.Errorf("room participants: %w", err)
	}
	return out, nil
}
