package hub

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Rooms returns the rooms with at least one in-session subscriber, mapped to
// their subscriber counts.
func (h *Hub) Rooms() map[int64]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[int64]int, len(h.rooms))
	for roomID, subs := range h.rooms {
		result[roomID] = len(subs)
	}
	return result
}

// RoomSubscriberCount returns the in-session subscriber count for one room.
func (h *Hub) RoomSubscriberCount(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
