package livelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scriptyard/taskd/internal/logcache"
)

// maxMessageSize caps an inbound frame (join/leave/ping); the Hub never
// receives large payloads from clients, only sends them.
const maxMessageSize = 64 * 1024

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// clientFrame is the only shape a livelog client is expected to send:
// join/leave a room, or a bare keepalive ping.
type clientFrame struct {
	Action string `json:"action"` // "join", "leave", "ping"
	Room   string `json:"room"`
}

// Conn wraps one websocket connection subscribed to the Hub. Its
// read/write pumps mirror internal/gateway.Client's: a single reader
// goroutine drives the blocking ReadMessage loop, a single writer
// goroutine owns every WriteMessage call and multiplexes outgoing
// frames with periodic pings.
type Conn struct {
	id    uuid.UUID
	conn  *websocket.Conn
	hub   *Hub
	cache *logcache.Cache
	send  chan []byte

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an already-upgraded websocket connection. cache may be
// nil, in which case joining a task room never replays buffered output.
func NewConn(conn *websocket.Conn, hub *Hub, cache *logcache.Cache) *Conn {
	return &Conn{
		id:    uuid.New(),
		conn:  conn,
		hub:   hub,
		cache: cache,
		send:  make(chan []byte, 256),
	}
}

// Run joins the connection to the global room and blocks until the
// connection closes (read error, write error, or ctx cancellation).
func (c *Conn) Run(ctx context.Context) {
	c.hub.Join(RoomGlobal, c)
	defer c.hub.LeaveAll(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump(ctx)
	<-done
}

func (c *Conn) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("livelog: read error", "conn", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleFrame(data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("livelog: malformed client frame", "conn", c.id, "error", err)
		return
	}
	switch frame.Action {
	case "join":
		if frame.Room != "" {
			c.replay(frame.Room)
			c.hub.Join(frame.Room, c)
		}
	case "leave":
		if frame.Room != "" {
			c.hub.Leave(frame.Room, c)
		}
	case "ping":
		c.trySend([]byte(`{"type":"pong"}`))
	}
}

// replay sends every line currently buffered in the Log Cache for room's
// task as task_output events, so a client joining task_<id> after the
// task has already printed something still sees it -- ahead of hub.Join
// so nothing buffered arrives out of order with respect to live output.
// A no-op for the global room, an unparseable room, or a task with
// nothing (yet) cached.
func (c *Conn) replay(room string) {
	if c.cache == nil {
		return
	}
	taskID, ok := ParseTaskRoom(room)
	if !ok {
		return
	}
	for _, l := range c.cache.Lines(taskID) {
		data, err := json.Marshal(Event{
			Type: "task_output",
			Room: room,
			Data: map[string]any{"task_id": taskID, "stream": l.Stream, "line": l.Text},
		})
		if err != nil {
			slog.Error("livelog: marshal replay event failed", "error", err)
			return
		}
		c.trySend(data)
	}
}

// trySend enqueues data without blocking. It reports whether the
// message was accepted; a full buffer means the connection is too slow
// and should be dropped.
func (c *Conn) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close shuts the connection's send channel, unblocking its writePump.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID { return c.id }
