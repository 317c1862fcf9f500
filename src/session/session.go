// Package session implements the per-connection protocol: frame validation,
// room rules, persistence, and fan-out triggering.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harborchat/harbor/src/hub"
	"github.com/harborchat/harbor/src/store"
	"github.com/harborchat/harbor/src/types"
)

// Handler validates inbound frames against room and participant rules,
// persists side effects, and triggers fan-out. One Handler serves every
// connection; per-connection state lives on the hub client.
type Handler struct {
	hub      *hub.Hub
	rooms    store.RoomDirectory
	messages store.MessageStore
	logger   zerolog.Logger

	mu        sync.Mutex
	roomLocks map[int64]*sync.Mutex
}

// New creates a protocol handler.
func New(h *hub.Hub, rooms store.RoomDirectory, messages store.MessageStore, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:       h,
		rooms:     rooms,
		messages:  messages,
		logger:    logger.With().Str("component", "session").Logger(),
		roomLocks: make(map[int64]*sync.Mutex),
	}
}

// Handle processes one inbound frame. Failures are reported to the sending
// connection only; the connection stays open.
func (h *Handler) Handle(c *hub.Client, frame types.Frame) {
	ctx := context.Background()

	switch frame.Type {
	case types.FrameJoinRoom:
		h.handleJoin(ctx, c, frame)
	case types.FrameSendMessage:
		h.handleSend(ctx, c, frame)
	case types.FrameTyping:
		h.handleTyping(ctx, c, frame)
	default:
		h.sendError(c, "unknown frame type")
	}
}

// handleJoin subscribes the connection to a room's in-session traffic and
// announces the join to the other subscribers.
func (h *Handler) handleJoin(ctx context.Context, c *hub.Client, frame types.Frame) {
	if frame.ChatRoomID == 0 {
		h.sendError(c, "chat_room_id is required")
		return
	}
	room, err := h.rooms.Lookup(ctx, frame.ChatRoomID)
	if err != nil {
		h.sendError(c, lookupErrorMessage(err))
		return
	}
	if room.Kind == types.RoomClosed {
		if !c.Identity.Authenticated || !room.HasParticipant(c.Identity.UserID) {
			h.sendError(c, "not a participant of this room")
			return
		}
	}

	h.hub.Join(room.ID, c.ID)
	h.logger.Debug().
		Str("connection_id", c.ID).
		Int64("room_id", room.ID).
		Msg("joined room")

	h.hub.Broadcast(ctx, h.rooms, room.ID, types.UserJoined{
		Type:       types.EventUserJoined,
		UserName:   c.Identity.Name(),
		ChatRoomID: room.ID,
	}, c.ID)
}

// handleSend persists the message, then fans it out to the room including
// the sender, whose copy carries the durable id and timestamp. Persist and
// fan-out are serialized per room so recipients observe messages in
// persistence order.
func (h *Handler) handleSend(ctx context.Context, c *hub.Client, frame types.Frame) {
	if frame.ChatRoomID == 0 {
		h.sendError(c, "chat_room_id is required")
		return
	}
	if strings.TrimSpace(frame.Content) == "" {
		h.sendError(c, "message content is required")
		return
	}
	room, err := h.rooms.Lookup(ctx, frame.ChatRoomID)
	if err != nil {
		h.sendError(c, lookupErrorMessage(err))
		return
	}
	if room.Kind == types.RoomClosed {
		if !c.Identity.Authenticated || !room.HasParticipant(c.Identity.UserID) {
			h.sendError(c, "not a participant of this room")
			return
		}
	}

	lock := h.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.messages.PersistMessage(ctx, room.ID, c.Identity, frame.Content, frame.AnonymousName)
	if err != nil {
		h.logger.Error().Err(err).Int64("room_id", room.ID).Msg("message persistence failed")
		h.sendError(c, "failed to save message")
		return
	}

	delivered := h.hub.Broadcast(ctx, h.rooms, room.ID, msg.Event(), "")
	h.logger.Debug().
		Int64("room_id", room.ID).
		Int64("message_id", msg.ID).
		Int("delivered", delivered).
		Msg("message fanned out")
}

// handleTyping fans out a typing indicator, never echoing it to the sender
// and never persisting anything. Typing by a non-participant of a closed
// room is dropped silently.
func (h *Handler) handleTyping(ctx context.Context, c *hub.Client, frame types.Frame) {
	if frame.ChatRoomID == 0 {
		h.sendError(c, "chat_room_id is required")
		return
	}
	room, err := h.rooms.Lookup(ctx, frame.ChatRoomID)
	if err != nil {
		h.sendError(c, lookupErrorMessage(err))
		return
	}
	if room.Kind == types.RoomClosed {
		if !c.Identity.Authenticated || !room.HasParticipant(c.Identity.UserID) {
			return
		}
	}

	h.hub.Broadcast(ctx, h.rooms, room.ID, types.UserTyping{
		Type:       types.EventUserTyping,
		UserName:   c.Identity.Name(),
		IsTyping:   frame.IsTyping,
		ChatRoomID: room.ID,
	}, c.ID)
}

func (h *Handler) sendError(c *hub.Client, msg string) {
	h.hub.SendTo(c.ID, types.NewError(msg))
}

// roomLock returns the ordering mutex for a room, creating it on first use.
func (h *Handler) roomLock(roomID int64) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		h.roomLocks[roomID] = lock
	}
	return lock
}

func lookupErrorMessage(err error) string {
	if errors.Is(err, store.ErrRoomNotFound) {
		return "chat room not found"
	}
	return "room lookup failed"
}
