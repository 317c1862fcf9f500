package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harborchat/harbor/src/types"
)

// RoomDirectory resolves a room id to its kind and, for closed rooms, the
// persisted participant list. Defined here to avoid a dependency on the
// storage package.
type RoomDirectory interface {
	Lookup(ctx context.Context, roomID int64) (types.Room, error)
}

// Hub owns all live WebSocket connections, the authenticated-identity index,
// and the per-room subscriber sets. One RWMutex guards all three: the maps
// hold metadata only, and no lock is held across transport writes or store
// calls.
type Hub struct {
	clients  map[string]*Client
	identity map[int64]string          // authenticated user id -> connection id
	rooms    map[int64]map[string]bool // room id -> set of connection ids

	onConnect []func(*Client)
	onDisconn []func(*Client)

	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		identity: make(map[int64]string),
		rooms:    make(map[int64]map[string]bool),
		logger:   logger,
	}
}

// Register mints a connection id for conn, stores the client, and points the
// identity index at it when the identity is authenticated. A newer connection
// for the same user supersedes the index entry; the older transport is left
// open. Registration always succeeds.
func (h *Hub) Register(conn types.Conn, identity types.Identity) *Client {
	c := newClient(uuid.New().String(), conn, identity, h)

	h.mu.Lock()
	h.clients[c.ID] = c
	if identity.Authenticated {
		h.identity[identity.UserID] = c.ID
	}
	h.mu.Unlock()

	h.logger.Info().
		Str("connection_id", c.ID).
		Str("participant", identity.Name()).
		Bool("authenticated", identity.Authenticated).
		Msg("connection registered")

	for _, cb := range h.onConnect {
		cb(c)
	}
	return c
}

// Unregister removes the connection, its identity index entry, and every room
// subscription it holds. Idempotent: unknown ids are a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)

	// The index entry may already point at a superseding connection.
	if c.Identity.Authenticated && h.identity[c.Identity.UserID] == id {
		delete(h.identity, c.Identity.UserID)
	}

	h.leaveAllLocked(id)
	h.mu.Unlock()

	c.stop()
	h.logger.Info().Str("connection_id", id).Msg("connection unregistered")

	for _, cb := range h.onDisconn {
		cb(c)
	}
}

// Resolve returns the live connection id for an authenticated identity.
func (h *Hub) Resolve(identity types.Identity) (string, bool) {
	if !identity.Authenticated {
		return "", false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.identity[identity.UserID]
	return id, ok
}

// SendTo attempts delivery to a single connection. A full or closed outbound
// buffer marks the peer dead: the connection is evicted from the hub and
// false is returned. Transport trouble never surfaces as an error.
func (h *Hub) SendTo(id string, event any) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.trySend(event) {
		h.logger.Warn().Str("connection_id", id).Msg("send failed, evicting connection")
		h.Unregister(id)
		return false
	}
	return true
}

// OnConnection registers a callback invoked after each registration.
// Must be called before the hub starts accepting connections.
func (h *Hub) OnConnection(cb func(*Client)) {
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback invoked after each unregistration.
func (h *Hub) OnDisconnection(cb func(*Client)) {
	h.onDisconn = append(h.onDisconn, cb)
}
