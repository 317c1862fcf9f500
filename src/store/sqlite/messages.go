package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/harborchat/harbor/src/store"
	"github.com/harborchat/harbor/src/types"
)

// PersistMessage durably records a message and returns it with its assigned
// id and timestamp.
//
// Open rooms accept any sender; the visible name is the frame-declared
// anonymous name, with the authenticated username kept alongside when one
// exists. Closed rooms require an authenticated sender on the persisted
// participant list.
func (s *Store) PersistMessage(ctx context.Context, roomID int64, sender types.Identity, content, anonymousName string) (types.StoredMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.StoredMessage{}, fmt.Errorf("message content is required")
	}

	room, err := s.Lookup(ctx, roomID)
	if err != nil {
		return types.StoredMessage{}, err
	}

	msg := types.StoredMessage{
		ChatRoomID: roomID,
		Content:    content,
		Timestamp:  s.now().UTC(),
	}

	switch room.Kind {
	case types.RoomClosed:
		if !sender.Authenticated || !room.HasParticipant(sender.UserID) {
			return types.StoredMessage{}, store.ErrNotParticipant
		}
		userID := sender.UserID
		msg.SenderID = &userID
		msg.SenderName = sender.Username
	default:
		if anonymousName == "" {
			anonymousName = sender.Name()
		}
		msg.AnonymousName = anonymousName
		msg.SenderName = anonymousName
		if sender.Authenticated {
			userID := sender.UserID
			msg.SenderID = &userID
		}
	}

	var senderID any
	if msg.SenderID != nil {
		senderID = *msg.SenderID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_room_id, sender_id, anonymous_name, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		roomID, senderID, msg.AnonymousName, content, toMillis(msg.Timestamp))
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("message id: %w", err)
	}
	return msg, nil
}

// Messages returns a room's history in persistence order.
func (s *Store) Messages(ctx context.Context, roomID int64) ([]types.StoredMessage, error) {
	if _, err := s.roomByID(ctx, roomID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.chat_room_id, m.sender_id, COALESCE(u.username, ''), m.anonymous_name, m.content, m.timestamp
		 FROM messages m
		 LEFT JOIN users u ON u.id = m.sender_id
		 WHERE m.chat_room_id = ?
		 ORDER BY m.timestamp, m.id`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var history []types.StoredMessage
	for rows.Next() {
		var msg types.StoredMessage
		var senderID *int64
		var username string
		var ts int64
		if err := rows.Scan(&msg.ID, &msg.ChatRoomID, &senderID, &username, &msg.AnonymousName, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SenderID = senderID
		msg.Timestamp = fromMillis(ts)
		if msg.AnonymousName != "" {
			msg.SenderName = msg.AnonymousName
		} else {
			msg.SenderName = username
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return history, nil
}
