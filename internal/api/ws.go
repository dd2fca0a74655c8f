package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/airspace.report/internal/monitoring"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed carries no credentials in-band and the session token is
	// checked before upgrade; cross-origin dashboards are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWS upgrades the connection and streams bus events to the client until
// it disconnects or falls too far behind.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error.
		monitoring.Logf("websocket upgrade failed for %s: %v", claims.Email, err)
		return
	}

	sub := s.bus.Subscribe()
	monitoring.Logf("websocket connected: %s (subscriber %s)", claims.Email, sub.ID)

	// Reader: we never expect client frames, but reading drives pong
	// handling and surfaces the close.
	go func() {
		defer s.bus.Unsubscribe(sub.ID)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer: events in publish order, with keepalive pings.
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer func() {
			ticker.Stop()
			conn.Close()
			monitoring.Logf("websocket disconnected: %s (subscriber %s)", claims.Email, sub.ID)
		}()

		for {
			select {
			case event, ok := <-sub.Events:
				if !ok {
					// Evicted by the bus for falling behind.
					conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"))
					return
				}
				payload, err := event.Encode()
				if err != nil {
					monitoring.Logf("failed to encode %s event: %v", event.Type, err)
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}
