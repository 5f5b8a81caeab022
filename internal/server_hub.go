package internal

import (
	"context"
	"log"
	"sync"
)

type inboundMessage struct {
	conn     *Conn
	envelope Envelope
}

// Hub is the single dispatcher for every connection. Joins, operations and
// disconnects are handled one at a time on the Run goroutine, so the registry and
// the connection set never see concurrent writers.
type Hub struct {
	registry *Registry
	relay    *Relay
	metrics  *Metrics
	quiet    bool

	mutex sync.RWMutex
	conns map[string]*Conn

	// connections whose send buffer overflowed during the current event
	evicting []*Conn

	register   chan *Conn
	unregister chan *Conn
	inbound    chan inboundMessage
	done       chan struct{}
}

func NewHub(registry *Registry, metrics *Metrics) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	hub := &Hub{
		registry:   registry,
		metrics:    metrics,
		conns:      make(map[string]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		inbound:    make(chan inboundMessage, 256),
		done:       make(chan struct{}),
	}
	hub.relay = NewRelay(registry, hub)
	return hub
}

// SetQuiet silences the hub's connection and join logs. Call it before Run.
func (hub *Hub) SetQuiet(quiet bool) {
	hub.quiet = quiet
}

func (hub *Hub) logf(format string, args ...interface{}) {
	if hub.quiet {
		return
	}
	log.Printf(format, args...)
}

func (hub *Hub) Registry() *Registry {
	return hub.registry
}

// Size reports the number of open connections, joined or not.
func (hub *Hub) Size() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.conns)
}

// Run processes events until ctx is cancelled, then closes every connection.
func (hub *Hub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			hub.closeAll()
			return
		case conn := <-hub.register:
			hub.addConn(conn)
		case conn := <-hub.unregister:
			hub.removeConn(conn)
		case msg := <-hub.inbound:
			hub.dispatch(msg)
		}
		hub.flushEvictions()
	}
}

// attach hands a fresh connection to the dispatcher. False means the hub stopped.
func (hub *Hub) attach(conn *Conn) bool {
	select {
	case hub.register <- conn:
		return true
	case <-hub.done:
		return false
	}
}

func (hub *Hub) detach(conn *Conn) {
	select {
	case hub.unregister <- conn:
	case <-hub.done:
	}
}

func (hub *Hub) deliver(conn *Conn, envelope Envelope) bool {
	select {
	case hub.inbound <- inboundMessage{conn: conn, envelope: envelope}:
		return true
	case <-hub.done:
		return false
	}
}

func (hub *Hub) addConn(conn *Conn) {
	hub.mutex.Lock()
	hub.conns[conn.id] = conn
	hub.mutex.Unlock()
	hub.metrics.IncConn()
	hub.logf("connection %s opened", conn.id)

	if payload, err := encodeEnvelope(EventConnected, connectedPayload{UserID: conn.id}); err == nil {
		hub.sendTo(conn, payload)
	}
}

// removeConn tears a connection down and tells the others if it had joined.
// Repeated calls for the same connection are no-ops.
func (hub *Hub) removeConn(conn *Conn) {
	hub.mutex.Lock()
	current, exists := hub.conns[conn.id]
	if !exists || current != conn {
		hub.mutex.Unlock()
		return
	}
	delete(hub.conns, conn.id)
	hub.mutex.Unlock()
	close(conn.send)
	hub.metrics.DecConn()

	user, joined := hub.registry.Leave(conn.id)
	if !joined {
		hub.logf("connection %s closed before joining", conn.id)
		return
	}
	hub.metrics.IncLeave()
	hub.logf("user %s (%s) left", user.Nickname, user.ID)
	if payload, err := encodeEnvelope(EventUserLeft, userLeftPayload{UserID: user.ID}); err == nil {
		hub.BroadcastExcept(user.ID, payload)
	}
}

func (hub *Hub) dispatch(msg inboundMessage) {
	if !hub.isLive(msg.conn) {
		// already evicted; whatever it still had in flight is void
		return
	}
	if msg.envelope.Event == EventUserJoin {
		var req JoinRequest
		if err := decodeData(msg.envelope.Data, &req); err != nil {
			hub.logf("drop join from %s: %v", msg.conn.id, err)
			hub.metrics.IncDropped()
			return
		}
		hub.handleJoin(msg.conn, req)
		return
	}

	op, err := DecodeOperation(msg.envelope.Event, msg.envelope.Data)
	if err != nil {
		hub.logf("drop %q from %s: %v", msg.envelope.Event, msg.conn.id, err)
		hub.metrics.IncDropped()
		return
	}
	if _, ok := hub.relay.Relay(msg.conn.id, op); !ok {
		hub.logf("drop %q from %s: sender has not joined", op.Kind(), msg.conn.id)
		hub.metrics.IncDropped()
		return
	}
	hub.metrics.IncRelayed()
}

// handleJoin answers the joiner with its identity, tells everyone else, then sends
// the joiner the full roster (which includes the joiner).
func (hub *Hub) handleJoin(conn *Conn, req JoinRequest) {
	user := hub.registry.Join(conn.id, req.Nickname, req.Color)
	hub.metrics.IncJoin()
	hub.logf("user %s (%s) joined", user.Nickname, user.ID)

	joined, err := encodeEnvelope(EventUserJoined, user.Info())
	if err != nil {
		hub.logf("encode user-joined: %v", err)
		return
	}
	hub.sendTo(conn, joined)
	hub.BroadcastExcept(conn.id, joined)

	roster := hub.registry.Roster()
	infos := make([]UserInfo, 0, len(roster))
	for _, u := range roster {
		infos = append(infos, u.Info())
	}
	existing, err := encodeEnvelope(EventExistingUsers, infos)
	if err != nil {
		hub.logf("encode existing-users: %v", err)
		return
	}
	hub.sendTo(conn, existing)
}

// BroadcastExcept queues payload on every live connection but the sender. It is
// only called from the Run goroutine.
func (hub *Hub) BroadcastExcept(senderID string, payload []byte) {
	for id, conn := range hub.conns {
		if id == senderID {
			continue
		}
		hub.sendTo(conn, payload)
	}
}

// sendTo never blocks: a peer whose buffer is full is scheduled for eviction and
// goes through the regular leave path once the current event is done.
func (hub *Hub) sendTo(conn *Conn, payload []byte) {
	if hub.isEvicting(conn) {
		return
	}
	select {
	case conn.send <- payload:
	default:
		hub.logf("connection %s too slow, evicting", conn.id)
		hub.metrics.IncEviction()
		hub.evicting = append(hub.evicting, conn)
	}
}

func (hub *Hub) flushEvictions() {
	for len(hub.evicting) > 0 {
		conn := hub.evicting[0]
		hub.evicting = hub.evicting[1:]
		hub.removeConn(conn)
	}
}

func (hub *Hub) isEvicting(conn *Conn) bool {
	for _, pending := range hub.evicting {
		if pending == conn {
			return true
		}
	}
	return false
}

func (hub *Hub) isLive(conn *Conn) bool {
	current, ok := hub.conns[conn.id]
	return ok && current == conn && !hub.isEvicting(conn)
}

func (hub *Hub) closeAll() {
	hub.mutex.Lock()
	conns := hub.conns
	hub.conns = make(map[string]*Conn)
	hub.mutex.Unlock()
	for id, conn := range conns {
		close(conn.send)
		hub.registry.Leave(id)
		hub.metrics.DecConn()
	}
	hub.evicting = nil
}
