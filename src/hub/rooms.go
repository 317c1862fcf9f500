package hub

// Join adds a connection to a room's subscriber set. Idempotent. Reports
// false when the connection is not registered.
func (h *Hub) Join(roomID int64, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return false
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]bool)
	}
	h.rooms[roomID][connID] = true
	return true
}

// Leave removes a connection from a room's subscriber set. Idempotent.
func (h *Hub) Leave(roomID int64, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// LeaveAll removes a connection from every room it subscribed to. Invoked on
// disconnect and on send-failure eviction so no room ever holds a dangling
// connection id.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAllLocked(connID)
}

func (h *Hub) leaveAllLocked(connID string) {
	for roomID, subs := range h.rooms {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribers returns a copy of the connection ids currently subscribed to a
// room this session.
func (h *Hub) Subscribers(roomID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.rooms[roomID]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}
