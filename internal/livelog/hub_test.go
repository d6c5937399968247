package livelog

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newTestConn(h *Hub) *Conn {
	return &Conn{id: uuid.New(), hub: h, send: make(chan []byte, 4)}
}

func TestBroadcastDeliversToRoomMembersOnly(t *testing.T) {
	h := NewHub()
	a := newTestConn(h)
	b := newTestConn(h)
	h.Join(RoomGlobal, a)
	h.Join(TaskRoom(uuid.New()), b)

	h.Broadcast(RoomGlobal, Event{Type: "task_start", Data: map[string]any{"x": 1}})

	select {
	case data := <-a.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "task_start" || got.Room != RoomGlobal {
			t.Fatalf("unexpected event: %+v", got)
		}
	default:
		t.Fatal("expected a to receive the broadcast")
	}

	select {
	case <-b.send:
		t.Fatal("b should not receive a global-room broadcast")
	default:
	}
}

func TestBroadcastDropsFullMember(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.Join(RoomGlobal, c)
	for i := 0; i < cap(c.send); i++ {
		c.send <- []byte("filler")
	}

	h.Broadcast(RoomGlobal, Event{Type: "x"})

	h.mu.RLock()
	_, stillMember := h.rooms[RoomGlobal][c.id]
	h.mu.RUnlock()
	if stillMember {
		t.Fatal("expected the full-buffer connection to be dropped from the room")
	}
}

func TestLeaveAllRemovesFromEveryRoom(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.Join(RoomGlobal, c)
	h.Join("task:1", c)
	h.LeaveAll(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.rooms) != 0 {
		t.Fatalf("expected no rooms left, got %v", h.rooms)
	}
}
