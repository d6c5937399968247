// Package livelog fans out task/subscription/probe output to connected
// websocket clients in near-real time. It generalizes two teacher
// patterns into one: a room-keyed subscriber map (in the style of
// internal/bus.MessageBus's subscriber map and Broadcast) and a
// buffered-channel, ping/pong-aware connection (in the style of
// internal/gateway.Client's read/write pumps).
package livelog

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Room names. "global" receives task_start/task_complete/task_error and
// sub_start/sub_complete across every task; "task:<id>" receives the
// output lines of one running task.
const (
	RoomGlobal = "global"
)

// TaskRoom is the per-task output room name for taskID.
func TaskRoom(taskID uuid.UUID) string {
	return "task:" + taskID.String()
}

// ParseTaskRoom recovers the task ID a TaskRoom name was built from. It
// reports false for any room that isn't a per-task output room (the
// global room, or a malformed/unknown ID).
func ParseTaskRoom(room string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(room, "task:")
	if !ok {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// Event is one frame pushed to subscribers. Type discriminates the
// payload the way the reference server's Socket.IO events do; Go
// clients type-switch on it after unmarshaling Data into the shape
// they expect for that Type.
type Event struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data any    `json:"data"`
}

// Hub owns every room's subscriber set and fans Broadcast calls out to
// each member's buffered send channel. A full buffer never blocks the
// broadcaster -- the slow member is dropped instead, the same
// backpressure contract internal/gateway.Client's SendEvent uses for a
// single connection, generalized here to an arbitrary number of rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]*Conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[uuid.UUID]*Conn)}
}

// Join registers conn as a member of room. A connection may join
// multiple rooms (e.g. global plus one task room at a time).
func (h *Hub) Join(room string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Conn)
		h.rooms[room] = members
	}
	members[conn.id] = conn
}

// Leave removes conn from room. Leaving a room the connection was never
// in is a no-op.
func (h *Hub) Leave(room string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, conn.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// LeaveAll removes conn from every room, called once on disconnect.
func (h *Hub) LeaveAll(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, conn.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends event to every member of room. A member whose send
// buffer is full is dropped from the room rather than blocking the
// broadcaster or the other members.
func (h *Hub) Broadcast(room string, event Event) {
	event.Room = room
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("livelog: marshal event failed", "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.trySend(data) {
			slog.Warn("livelog: send buffer full, dropping connection", "conn", c.id, "room", room)
			h.LeaveAll(c)
			c.Close()
		}
	}
}
