package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"zenux/internal/metrics"
)

type Socket struct {
	conn      *websocket.Conn
	send      chan []byte
	scopes    []string
	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and pumps it until it drops. scopes is the
// set of subscription keys this session may send to and receive from.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, scopes []string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its error response.
		return
	}
	socket := &Socket{
		conn:   conn,
		send:   make(chan []byte, 16),
		scopes: scopes,
	}
	for _, scope := range scopes {
		hub.Subscribe(scope, socket)
	}
	metrics.RelayConnections.Inc()
	go socket.writePump()
	socket.readPump(hub)
}

func (s *Socket) subscribed(scope string) bool {
	for _, candidate := range s.scopes {
		if candidate == scope {
			return true
		}
	}
	return false
}

// close tears the connection down; both pumps exit on the dead conn and the
// read pump unsubscribes everywhere. The send channel is never closed, so a
// racing broadcast at worst hits a full buffer.
func (s *Socket) close() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Socket) readPump(hub *Hub) {
	defer func() {
		for _, scope := range s.scopes {
			hub.Unsubscribe(scope, s)
		}
		metrics.RelayConnections.Dec()
		s.close()
	}()
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if !KnownEvent(env.Type) || !s.subscribed(env.Scope) {
			continue
		}
		hub.Ingress(s, env)
	}
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
