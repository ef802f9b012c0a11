package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from this same origin; cross-origin QR watching
	// is not a supported surface.
	CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" || sameOrigin(r) },
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

const wsWriteTimeout = 10 * time.Second

// handleQRWatch streams status updates (and rotated QR payloads) for one
// session over a WebSocket, sparing the browser the polling loop. The
// stream ends when the session reaches a terminal state. The upgrade
// happens before the session lookup: a plain HTTP body would be invisible
// to a browser WebSocket client, so finished and unknown sessions get
// their terminal status as the single frame instead.
func (s *Server) handleQRWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	updates, cancel, ok := s.pairing.Watch(id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if ok {
			cancel()
		}
		slog.Debug("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Discard inbound frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial snapshot so the client does not wait for the next change.
	first := map[string]string{"status": s.pairing.Status(id)}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(first); err != nil {
		if ok {
			cancel()
		}
		return
	}

	if ok {
		defer cancel()
		for u := range updates {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
}
