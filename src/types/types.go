package types

import "time"

// Frame is an inbound protocol frame read from a WebSocket connection.
// The Type discriminator selects which of the remaining fields apply.
type Frame struct {
	Type          string `json:"type"`
	ChatRoomID    int64  `json:"chat_room_id,omitempty"`
	Content       string `json:"content,omitempty"`
	IsTyping      bool   `json:"is_typing,omitempty"`
	AnonymousName string `json:"anonymous_name,omitempty"`
}

// Inbound frame types.
const (
	FrameJoinRoom    = "join_room"
	FrameSendMessage = "send_message"
	FrameTyping      = "typing"
)

// Outbound event types.
const (
	EventConnectionEstablished = "connection_established"
	EventNewMessage            = "new_message"
	EventUserTyping            = "user_typing"
	EventUserJoined            = "user_joined"
	EventError                 = "error"
)

// ConnectionEstablished is sent once, immediately after a connection opens.
type ConnectionEstablished struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewMessage carries a persisted chat message to room recipients. ID and
// Timestamp are the values assigned by the message store, so the sender's
// own copy doubles as a durability confirmation.
type NewMessage struct {
	Type          string `json:"type"`
	ID            int64  `json:"id"`
	ChatRoomID    int64  `json:"chat_room_id"`
	Content       string `json:"content"`
	SenderID      *int64 `json:"sender_id"`
	SenderName    string `json:"sender_name"`
	AnonymousName string `json:"anonymous_name,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// UserTyping is a typing indicator. Never echoed back to its sender.
type UserTyping struct {
	Type       string `json:"type"`
	UserName   string `json:"user_name"`
	IsTyping   bool   `json:"is_typing"`
	ChatRoomID int64  `json:"chat_room_id"`
}

// UserJoined announces an in-session join to the other room subscribers.
type UserJoined struct {
	Type       string `json:"type"`
	UserName   string `json:"user_name"`
	ChatRoomID int64  `json:"chat_room_id"`
}

// ErrorEvent reports a per-frame failure to the sender only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error event.
func NewError(msg string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: msg}
}

// Identity is the participant behind a connection, fixed at connect time.
// Either an authenticated user or an anonymous visitor with a display name.
type Identity struct {
	UserID        int64
	Username      string
	DisplayName   string
	Authenticated bool
}

// Anonymous builds an anonymous identity. An empty name falls back to
// "Anonymous".
func Anonymous(displayName string) Identity {
	if displayName == "" {
		displayName = "Anonymous"
	}
	return Identity{DisplayName: displayName}
}

// Authenticated builds an identity for a verified user.
func Authenticated(userID int64, username string) Identity {
	return Identity{UserID: userID, Username: username, Authenticated: true}
}

// Name returns the participant's visible name.
func (i Identity) Name() string {
	if i.Authenticated {
		return i.Username
	}
	return i.DisplayName
}

// RoomKind determines who a broadcast reaches. Open rooms deliver to
// connections that joined in-session; closed rooms deliver to the persisted
// participant list regardless of in-session joins.
type RoomKind string

const (
	RoomOpen   RoomKind = "open"
	RoomClosed RoomKind = "closed"
)

// Room is the directory view of a chat room. Participants is populated for
// closed rooms only.
type Room struct {
	ID           int64
	Name         string
	Kind         RoomKind
	Participants []int64
}

// HasParticipant reports whether userID is on the persisted participant list.
func (r Room) HasParticipant(userID int64) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// StoredMessage is the durable record returned by the message store.
type StoredMessage struct {
	ID            int64
	ChatRoomID    int64
	Content       string
	SenderID      *int64
	SenderName    string
	AnonymousName string
	Timestamp     time.Time
}

// Event converts a stored message into its wire representation.
func (m StoredMessage) Event() NewMessage {
	return NewMessage{
		Type:          EventNewMessage,
		ID:            m.ID,
		ChatRoomID:    m.ChatRoomID,
		Content:       m.Content,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		AnonymousName: m.AnonymousName,
		Timestamp:     m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Conn abstracts a WebSocket connection for testability. ReadMessage returns
// the raw frame bytes so that malformed JSON can be answered with an error
// event instead of closing the connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}
