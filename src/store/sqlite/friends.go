package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harborchat/harbor/src/store"
)

// AreFriends reports whether an accepted friendship exists between a and b.
func (s *Store) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendships WHERE user1_id = ? AND user2_id = ?`, lo, hi).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("friendship lookup: %w", err)
	}
	return n > 0, nil
}

// CreateFriendRequest records a pending request from sender to receiver.
func (s *Store) CreateFriendRequest(ctx context.Context, senderID, receiverID int64) (store.FriendRequest, error) {
	if senderID == receiverID {
		return store.FriendRequest{}, store.ErrSelfRequest
	}
	if _, err := s.UserByID(ctx, receiverID); err != nil {
		return store.FriendRequest{}, err
	}
	friends, err := s.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return store.FriendRequest{}, err
	}
	if friends {
		return store.FriendRequest{}, store.ErrAlreadyFriends
	}

	var existing int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friend_requests
		 WHERE status = 'pending'
		   AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`,
		senderID, receiverID, receiverID, senderID).Scan(&existing)
	if err != nil {
		return store.FriendRequest{}, fmt.Errorf("pending request lookup: %w", err)
	}
	if existing > 0 {
		return store.FriendRequest{}, store.ErrRequestExists
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, status, created_at) VALUES (?, ?, 'pending', ?)`,
		senderID, receiverID, toMillis(now))
	if err != nil {
		return store.FriendRequest{}, fmt.Errorf("insert friend request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.FriendRequest{}, fmt.Errorf("friend request id: %w", err)
	}
	return store.FriendRequest{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     store.RequestPending,
		CreatedAt:  now.UTC(),
	}, nil
}

// RespondFriendRequest accepts or rejects a pending request addressed to
// receiverID. Accepting creates the friendship and the pair's private room.
func (s *Store) RespondFriendRequest(ctx context.Context, requestID, receiverID int64, accept bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var senderID int64
	err = tx.QueryRowContext(ctx,
		`SELECT sender_id FROM friend_requests WHERE id = ? AND receiver_id = ? AND status = 'pending'`,
		requestID, receiverID).Scan(&senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("request lookup: %w", err)
	}

	status := store.RequestRejected
	if accept {
		status = store.RequestAccepted
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE friend_requests SET status = ? WHERE id = ?`, status, requestID); err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	if accept {
		lo, hi := orderPair(senderID, receiverID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO friendships (user1_id, user2_id, created_at) VALUES (?, ?, ?)`,
			lo, hi, toMillis(s.now())); err != nil {
			return fmt.Errorf("insert friendship: %w", err)
		}
		if _, err := s.privateRoomTx(ctx, tx, senderID, receiverID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PendingRequests returns pending requests received by and sent by userID.
func (s *Store) PendingRequests(ctx context.Context, userID int64) (received, sent []store.FriendRequest, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.sender_id, su.username, r.receiver_id, ru.username, r.status, r.created_at
		 FROM friend_requests r
		 JOIN users su ON su.id = r.sender_id
		 JOIN users ru ON ru.id = r.receiver_id
		 WHERE r.status = 'pending' AND (r.receiver_id = ? OR r.sender_id = ?)
		 ORDER BY r.created_at`,
		userID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("pending requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fr store.FriendRequest
		var createdAt int64
		if err := rows.Scan(&fr.ID, &fr.SenderID, &fr.SenderName, &fr.ReceiverID, &fr.ReceiverName, &fr.Status, &createdAt); err != nil {
			return nil, nil, fmt.Errorf("scan request: %w", err)
		}
		fr.CreatedAt = fromMillis(createdAt)
		if fr.ReceiverID == userID {
			received = append(received, fr)
		} else {
			sent = append(sent, fr)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("pending requests: %w", err)
	}
	return received, sent, nil
}

// Friends lists the accepted friends of userID.
func (s *Store) Friends(ctx context.Context, userID int64) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.created_at
		 FROM users u
		 JOIN friendships f ON (f.user1_id = u.id AND f.user2_id = ?)
		                    OR (f.user2_id = u.id AND f.user1_id = ?)
		 ORDER BY u.username`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []store.User
	for rows.Next() {
		var u store.User
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		u.CreatedAt = fromMillis(createdAt)
		friends = append(friends, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
