package livelog

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scriptyard/taskd/internal/logcache"
)

func TestHandlerJoinsGlobalRoomAndBroadcasts(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(Handler(hub, nil, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast(RoomGlobal, Event{Type: "task_start", Data: map[string]any{"x": 1}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "task_start") {
		t.Fatalf("unexpected frame: %s", data)
	}
}

func TestHandlerReplaysCachedOutputOnJoin(t *testing.T) {
	hub := NewHub()
	cache := logcache.New(time.Minute)
	taskID := uuid.New()
	cache.Start(taskID, uuid.New())
	cache.Append(taskID, "stdout", "line one")
	cache.Append(taskID, "stdout", "line two")

	srv := httptest.NewServer(Handler(hub, nil, cache))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	room := TaskRoom(taskID)
	if err := conn.WriteJSON(clientFrame{Action: "join", Room: room}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"line one", "line two"} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected replayed line %q, got: %s", want, data)
		}
	}
}

func TestHandlerRejectsWhenRateLimited(t *testing.T) {
	hub := NewHub()
	limiter := NewRateLimiter(1, 1)
	srv := httptest.NewServer(Handler(hub, limiter, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn1.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected second dial to be rejected by the rate limiter")
	}
	if resp == nil || resp.StatusCode != 429 {
		t.Fatalf("expected 429, got %+v", resp)
	}
}
