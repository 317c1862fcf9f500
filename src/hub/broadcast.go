package hub

import (
	"context"

	"github.com/harborchat/harbor/src/types"
)

// Broadcast delivers an event to every eligible connection of a room and
// returns how many accepted it.
//
// Open rooms deliver to the in-session subscriber set: a connection only
// receives traffic after an explicit join, because an open room has no
// durable membership to consult. Closed rooms deliver to every persisted
// participant that currently resolves to a live connection, join or not;
// the stored participant list is the authority there.
//
// excludeID, when non-empty, suppresses the sender's own echo. Delivery
// attempts are independent: a dead peer is evicted by SendTo and the
// remaining deliveries proceed.
func (h *Hub) Broadcast(ctx context.Context, dir RoomDirectory, roomID int64, event any, excludeID string) int {
	room, err := dir.Lookup(ctx, roomID)
	if err != nil {
		h.logger.Warn().Err(err).Int64("room_id", roomID).Msg("broadcast to unknown room dropped")
		return 0
	}

	var targets []string
	switch room.Kind {
	case types.RoomClosed:
		h.mu.RLock()
		for _, userID := range room.Participants {
			if connID, ok := h.identity[userID]; ok {
				targets = append(targets, connID)
			}
		}
		h.mu.RUnlock()
	default:
		targets = h.Subscribers(roomID)
	}

	delivered := 0
	for _, connID := range targets {
		if connID == excludeID {
			continue
		}
		if h.SendTo(connID, event) {
			delivered++
		}
	}
	return delivered
}
