// Package store defines the persistence contract consumed by the real-time
// core and the HTTP API. The session handler only sees the two small
// interfaces below; everything else backs the request/response endpoints.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/harborchat/harbor/src/types"
)

var (
	ErrRoomNotFound    = errors.New("chat room not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotParticipant  = errors.New("not a participant of this room")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrRequestNotFound = errors.New("friend request not found")
	ErrRequestExists   = errors.New("friend request already exists")
	ErrAlreadyFriends  = errors.New("already friends")
	ErrNotFriends      = errors.New("users are not friends")
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
)

// RoomDirectory resolves rooms for validation and fan-out.
type RoomDirectory interface {
	Lookup(ctx context.Context, roomID int64) (types.Room, error)
}

// MessageStore durably records chat messages. The anonymous name is taken
// from the frame for open rooms, where sender identity is client-declared.
type MessageStore interface {
	PersistMessage(ctx context.Context, roomID int64, sender types.Identity, content, anonymousName string) (types.StoredMessage, error)
}

// Room types as persisted. Anonymous rooms are open; private and group rooms
// are closed-membership.
const (
	RoomTypeAnonymous = "anonymous"
	RoomTypePrivate   = "private"
	RoomTypeGroup     = "group"
)

// KindOf maps a persisted room type to its delivery model.
func KindOf(roomType string) types.RoomKind {
	if roomType == RoomTypeAnonymous {
		return types.RoomOpen
	}
	return types.RoomClosed
}

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// FriendRequest statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRequest is a pending or resolved friendship offer.
type FriendRequest struct {
	ID           int64
	SenderID     int64
	SenderName   string
	ReceiverID   int64
	ReceiverName string
	Status       string
	CreatedAt    time.Time
}

// ChatRoom is the CRUD view of a room, as listed by the HTTP API.
type ChatRoom struct {
	ID        int64
	Name      string
	Type      string
	IsActive  bool
	CreatedAt time.Time
}

// Friendship statuses reported by user search.
const (
	StatusNone            = "none"
	StatusFriend          = "friend"
	StatusRequestSent     = "request_sent"
	StatusRequestReceived = "request_received"
)

// UserSearchResult is a user plus their friendship status relative to the
// searching user.
type UserSearchResult struct {
	ID               int64
	Username         string
	Email            string
	FriendshipStatus string
}
