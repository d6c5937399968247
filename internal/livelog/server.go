package livelog

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/scriptyard/taskd/internal/logcache"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades an HTTP request to a websocket and joins it to the
// Hub's global room, optionally gated by a RateLimiter keyed on the
// remote address. limiter may be nil to disable the gate. cache may be
// nil, in which case joining a task room never replays buffered output.
func Handler(hub *Hub, limiter *RateLimiter, cache *logcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow(r.RemoteAddr) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("livelog: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		c := NewConn(conn, hub, cache)
		c.Run(r.Context())
	}
}
