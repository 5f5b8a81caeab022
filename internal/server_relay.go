package internal

import (
	"log"
	"time"
)

// Broadcaster delivers an encoded frame to every connection except the sender.
// A failed or slow send to one peer must not affect the others.
type Broadcaster interface {
	BroadcastExcept(senderID string, payload []byte)
}

// Relay stamps operations with the sender's registered identity and fans them out.
// It keeps no history of what it relayed.
type Relay struct {
	registry *Registry
	out      Broadcaster
	now      func() time.Time
}

func NewRelay(registry *Registry, out Broadcaster) *Relay {
	return &Relay{registry: registry, out: out, now: time.Now}
}

// Relay broadcasts op on behalf of connID. Operations from connections that have
// not joined are dropped and the bool is false.
func (r *Relay) Relay(connID string, op Operation) (RelayedOperation, bool) {
	user, ok := r.registry.Lookup(connID)
	if !ok {
		return RelayedOperation{}, false
	}
	relayed := RelayedOperation{
		Stamp: Stamp{
			UserID:    user.ID,
			Nickname:  user.Nickname,
			Color:     user.Color,
			Timestamp: r.now().UnixMilli(),
		},
		Op: op,
	}
	payload, err := encodeEnvelope(EventUserOperation, relayed)
	if err != nil {
		log.Printf("relay encode error: %v", err)
		return RelayedOperation{}, false
	}
	r.out.BroadcastExcept(connID, payload)
	return relayed, true
}
