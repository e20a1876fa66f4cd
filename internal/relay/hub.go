// Package relay is the realtime fan-out layer. Sockets subscribe to scope
// keys (wallet:<id>, chat:<id>) and every event is rebroadcast verbatim to
// the other subscribers of its scope. A NATS bridge carries envelopes
// between server instances so fan-out is not limited to one process.
package relay

import (
	"encoding/json"
	"sync"

	"zenux/internal/metrics"
)

const (
	EventChatMessage       = "chat_message"
	EventTransactionUpdate = "transaction_update"
)

// Envelope is the wire format on both the websocket and the bridge. Payload
// is opaque and forwarded untouched.
type Envelope struct {
	Type    string          `json:"type"`
	Scope   string          `json:"scope"`
	Payload json.RawMessage `json:"payload"`
}

func KnownEvent(eventType string) bool {
	return eventType == EventChatMessage || eventType == EventTransactionUpdate
}

type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[*Socket]struct{}
	bridge *Bridge
}

func NewHub() *Hub {
	return &Hub{scopes: make(map[string]map[*Socket]struct{})}
}

// SetBridge attaches the cross-instance backbone. Without one, fan-out is
// process-local.
func (h *Hub) SetBridge(bridge *Bridge) {
	h.bridge = bridge
}

func (h *Hub) Subscribe(scope string, socket *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scopes[scope] == nil {
		h.scopes[scope] = make(map[*Socket]struct{})
	}
	h.scopes[scope][socket] = struct{}{}
}

func (h *Hub) Unsubscribe(scope string, socket *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scopes[scope] == nil {
		return
	}
	delete(h.scopes[scope], socket)
	if len(h.scopes[scope]) == 0 {
		delete(h.scopes, scope)
	}
}

// Broadcast delivers env to every subscriber of its scope except from. A
// peer that cannot accept the message is dropped from the scope; delivery to
// the remaining peers continues.
func (h *Hub) Broadcast(from *Socket, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Socket, 0, len(h.scopes[env.Scope]))
	for socket := range h.scopes[env.Scope] {
		if socket != from {
			targets = append(targets, socket)
		}
	}
	h.mu.RUnlock()

	var stalled []*Socket
	for _, socket := range targets {
		select {
		case socket.send <- payload:
		default:
			stalled = append(stalled, socket)
		}
	}
	for _, socket := range stalled {
		h.Unsubscribe(env.Scope, socket)
		socket.close()
	}
	metrics.RelayBroadcasts.Inc()
}

// Publish is the server-internal entry point: it marshals the payload,
// fans out locally and forwards over the bridge.
func (h *Hub) Publish(scope, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := Envelope{Type: eventType, Scope: scope, Payload: raw}
	h.Broadcast(nil, env)
	if h.bridge != nil {
		h.bridge.Forward(env)
	}
}

// Ingress handles an envelope received from a connected socket: local
// fan-out excluding the sender, then the bridge for other instances.
func (h *Hub) Ingress(from *Socket, env Envelope) {
	h.Broadcast(from, env)
	if h.bridge != nil {
		h.bridge.Forward(env)
	}
}

// deliverRemote hands a bridged envelope to local subscribers only; the
// bridge already suppressed the originating instance.
func (h *Hub) deliverRemote(env Envelope) {
	h.Broadcast(nil, env)
}
