package relay

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "relay."

type bridgeMessage struct {
	Origin   string   `json:"origin"`
	Envelope Envelope `json:"envelope"`
}

// Bridge replicates envelopes between server instances over NATS. Each
// instance tags what it publishes and ignores its own messages coming back.
type Bridge struct {
	nc       *nats.Conn
	instance string
	sub      *nats.Subscription
}

func NewBridge(url, instanceID string, hub *Hub) (*Bridge, error) {
	nc, err := nats.Connect(url, nats.Name("zenux-relay-"+instanceID))
	if err != nil {
		return nil, err
	}
	bridge := &Bridge{nc: nc, instance: instanceID}
	sub, err := nc.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		var bm bridgeMessage
		if err := json.Unmarshal(msg.Data, &bm); err != nil {
			return
		}
		if bm.Origin == bridge.instance {
			return
		}
		hub.deliverRemote(bm.Envelope)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	bridge.sub = sub
	hub.SetBridge(bridge)
	return bridge, nil
}

func (b *Bridge) Forward(env Envelope) {
	data, err := json.Marshal(bridgeMessage{Origin: b.instance, Envelope: env})
	if err != nil {
		return
	}
	if err := b.nc.Publish(subjectPrefix+subjectToken(env.Scope), data); err != nil {
		log.Printf("relay bridge publish: %v", err)
	}
}

func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
}

// subjectToken makes a scope safe as a single NATS subject token.
func subjectToken(scope string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return replacer.Replace(scope)
}
