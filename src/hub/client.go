package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/harborchat/harbor/src/types"
)

// FrameHandler processes one decoded inbound frame for a connection.
type FrameHandler func(c *Client, frame types.Frame)

// Client wraps a WebSocket connection together with the participant identity
// established at connect time. The hub owns the client; everything else holds
// its connection id only.
type Client struct {
	ID       string
	Identity types.Identity

	conn        types.Conn
	hub         *Hub
	send        chan any
	connectedAt time.Time
	done        chan struct{}
	mu          sync.Mutex
	closed      bool
}

func newClient(id string, conn types.Conn, identity types.Identity, h *Hub) *Client {
	return &Client{
		ID:          id,
		Identity:    identity,
		conn:        conn,
		hub:         h,
		send:        make(chan any, 256),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ConnectedAt reports when the connection was registered.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// trySend queues an event for the write pump without blocking. Reports false
// when the client is stopped or its buffer is full.
func (c *Client) trySend(event any) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// ReadPump reads frames from the WebSocket until the transport fails, then
// unregisters the connection. A frame that is not valid JSON yields an error
// event to this connection only; the read loop continues.
func (c *Client) ReadPump(handle FrameHandler) {
	defer func() {
		c.hub.Unregister(c.ID)
		c.conn.Close()
	}()

	for {
		raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame types.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.trySend(types.NewError("malformed frame"))
			continue
		}
		handle(c, frame)
	}
}

// WritePump writes queued events to the WebSocket. A write error closes the
// transport, which in turn ends the read pump and unregisters the client.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// stop halts the pumps. Called by the hub during unregistration.
func (c *Client) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
