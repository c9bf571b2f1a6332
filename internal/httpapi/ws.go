package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raghavared/agent-maestro/internal/broadcast"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

// handleEventsWS attaches an observer. The subscription is taken before the
// snapshot is built, so no event between snapshot and stream can be lost;
// replaying one that is already inside the snapshot is harmless because
// every payload is a full snapshot.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	events, cancel := s.hub.Subscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		return
	}
	defer conn.Close()
	defer cancel()

	snapshot := broadcast.New(broadcast.TypeSyncSnapshot, "", map[string]any{
		"sessions": s.manager.ListSessions(),
	})
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	done := make(chan struct{})

	// Reader goroutine: the socket is observe-only, but reads must be
	// drained for close and pong frames to be processed.
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 20)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-time.After(30 * time.Second):
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
