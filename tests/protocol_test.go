package tests

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/src/hub"
	"github.com/harborchat/harbor/src/session"
	"github.com/harborchat/harbor/src/store/sqlite"
	"github.com/harborchat/harbor/src/types"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []any
	readCh   chan []byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case raw := <-m.readCh:
		return raw, nil
	case <-m.closedCh:
		return nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]any, len(m.written))
	copy(cp, m.written)
	return cp
}

// sendFrame pushes a raw JSON frame through the connection's read path.
func (m *mockConn) sendFrame(t *testing.T, frame any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	m.readCh <- raw
}

type server struct {
	store   *sqlite.Store
	hub     *hub.Hub
	handler *session.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := hub.New(zerolog.Nop())
	return &server{
		store:   st,
		hub:     h,
		handler: session.New(h, st, st, zerolog.Nop()),
	}
}

// connect registers a connection and starts both pumps, mirroring the
// WebSocket upgrade path.
func (s *server) connect(identity types.Identity) (*hub.Client, *mockConn) {
	conn := newMockConn()
	client := s.hub.Register(conn, identity)
	go client.WritePump()
	go client.ReadPump(s.handler.Handle)
	return client, conn
}

func settle() { time.Sleep(100 * time.Millisecond) }

func eventsOf[T any](written []any) []T {
	var out []T
	for _, v := range written {
		if ev, ok := v.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

func TestOpenRoomChatScenario(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	room, err := s.store.CreateAnonymousRoom(ctx, "lobby")
	require.NoError(t, err)

	_, aConn := s.connect(types.Anonymous("a"))
	_, bConn := s.connect(types.Anonymous("b"))

	aConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	bConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	settle()
	aConn.sendFrame(t, map[string]any{"type": "send_message", "chat_room_id": room.ID, "content": "hi", "anonymous_name": "a"})
	settle()

	got := eventsOf[types.NewMessage](bConn.getWritten())
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, room.ID, got[0].ChatRoomID)
	assert.Equal(t, "a", got[0].SenderName)
	assert.NotZero(t, got[0].ID)
	assert.NotEmpty(t, got[0].Timestamp)

	// Sender gets its own copy with the durable id.
	echo := eventsOf[types.NewMessage](aConn.getWritten())
	require.Len(t, echo, 1)
	assert.Equal(t, got[0].ID, echo[0].ID)

	// And the message is in the durable history.
	history, err := s.store.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestTypingScenario(t *testing.T) {
	s := newServer(t)
	room, err := s.store.CreateAnonymousRoom(context.Background(), "lobby")
	require.NoError(t, err)

	_, aConn := s.connect(types.Anonymous("a"))
	_, bConn := s.connect(types.Anonymous("b"))

	aConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	bConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	settle()
	aConn.sendFrame(t, map[string]any{"type": "typing", "chat_room_id": room.ID, "is_typing": true})
	settle()

	got := eventsOf[types.UserTyping](bConn.getWritten())
	require.Len(t, got, 1)
	assert.True(t, got[0].IsTyping)
	assert.Empty(t, eventsOf[types.UserTyping](aConn.getWritten()),
		"sender must not receive its own typing event")
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	s := newServer(t)
	room, err := s.store.CreateAnonymousRoom(context.Background(), "lobby")
	require.NoError(t, err)

	_, conn := s.connect(types.Anonymous("a"))

	conn.readCh <- []byte("{not json")
	settle()

	errs := eventsOf[types.ErrorEvent](conn.getWritten())
	require.Len(t, errs, 1)
	assert.Equal(t, "malformed frame", errs[0].Message)
	assert.Equal(t, 1, s.hub.ClientCount(), "connection stays open after a malformed frame")

	// The connection is still fully usable.
	conn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	settle()
	assert.Len(t, s.hub.Subscribers(room.ID), 1)
}

func TestClosedRoomScenario(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	alice, err := s.store.CreateUser(ctx, "alice", "", "hash")
	require.NoError(t, err)
	bob, err := s.store.CreateUser(ctx, "bob", "", "hash")
	require.NoError(t, err)
	eve, err := s.store.CreateUser(ctx, "eve", "", "hash")
	require.NoError(t, err)

	fr, err := s.store.CreateFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, s.store.RespondFriendRequest(ctx, fr.ID, bob.ID, true))
	room, err := s.store.PrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, aliceConn := s.connect(types.Authenticated(alice.ID, "alice"))
	_, bobConn := s.connect(types.Authenticated(bob.ID, "bob"))
	_, eveConn := s.connect(types.Authenticated(eve.ID, "eve"))

	// Bob never joins in-session; persisted membership still delivers.
	aliceConn.sendFrame(t, map[string]any{"type": "send_message", "chat_room_id": room.ID, "content": "hey bob"})
	settle()

	got := eventsOf[types.NewMessage](bobConn.getWritten())
	require.Len(t, got, 1)
	assert.Equal(t, "hey bob", got[0].Content)

	// Eve is rejected, nothing is persisted for her, nobody else hears it.
	eveConn.sendFrame(t, map[string]any{"type": "send_message", "chat_room_id": room.ID, "content": "intruding"})
	settle()

	errs := eventsOf[types.ErrorEvent](eveConn.getWritten())
	require.Len(t, errs, 1)

	history, err := s.store.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "only alice's message was persisted")
}

func TestDisconnectCleansUp(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	room, err := s.store.CreateAnonymousRoom(ctx, "lobby")
	require.NoError(t, err)

	_, aConn := s.connect(types.Authenticated(1, "alice"))
	_, bConn := s.connect(types.Anonymous("b"))

	aConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	bConn.sendFrame(t, map[string]any{"type": "join_room", "chat_room_id": room.ID})
	settle()
	require.Len(t, s.hub.Subscribers(room.ID), 2)

	// Abrupt transport closure.
	aConn.Close()
	settle()

	assert.Len(t, s.hub.Subscribers(room.ID), 1, "disconnect purges the subscription")
	_, ok := s.hub.Resolve(types.Authenticated(1, "alice"))
	assert.False(t, ok, "disconnect clears the identity index")

	// Fan-out continues for the remaining subscriber.
	bConn.sendFrame(t, map[string]any{"type": "send_message", "chat_room_id": room.ID, "content": "still here", "anonymous_name": "b"})
	settle()
	require.Len(t, eventsOf[types.NewMessage](bConn.getWritten()), 1)
}
