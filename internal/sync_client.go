package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by the Emit methods while there is no live
// connection. The edit is discarded, never queued.
var ErrNotConnected = errors.New("not connected")

const (
	defaultAckTimeout = 10 * time.Second
	eventBuffer       = 1024
)

// ServerEvent is something the relay told this client. The variants are
// PeerJoined, RosterReceived, PeerLeft, OperationReceived and Disconnected.
type ServerEvent interface {
	isServerEvent()
}

// PeerJoined announces a join. Self is set when it echoes our own join.
type PeerJoined struct {
	Peer UserInfo
	Self bool
}

// RosterReceived carries every joined user, this client included.
type RosterReceived struct {
	Users []UserInfo
}

type PeerLeft struct {
	UserID string
}

type OperationReceived struct {
	Op RelayedOperation
}

// Disconnected is sent once when the connection drops without Close being called.
type Disconnected struct {
	Err error
}

func (PeerJoined) isServerEvent()        {}
func (RosterReceived) isServerEvent()    {}
func (PeerLeft) isServerEvent()          {}
func (OperationReceived) isServerEvent() {}
func (Disconnected) isServerEvent()      {}

// Synchronizer owns the client end of the relay connection: it announces the
// join, forwards local edits and turns incoming frames into ServerEvents. It
// never reconnects by itself.
type Synchronizer struct {
	joinURL    string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	pongWait   time.Duration

	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	self   UserInfo
	peers  map[string]UserInfo
	events chan ServerEvent
}

func NewSynchronizer(joinURL string) *Synchronizer {
	return &Synchronizer{
		joinURL:    joinURL,
		dialer:     websocket.DefaultDialer,
		ackTimeout: defaultAckTimeout,
		pongWait:   pongWait,
		peers:      make(map[string]UserInfo),
		events:     make(chan ServerEvent, eventBuffer),
	}
}

// Events delivers server events in arrival order for the life of the
// Synchronizer, across reconnects.
func (s *Synchronizer) Events() <-chan ServerEvent {
	return s.events
}

// Connect dials the relay, waits for its acknowledgment and sends user-join.
// Calling it while connected does nothing.
func (s *Synchronizer) Connect(ctx context.Context, nickname, color string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if s.Connected() {
		return nil
	}

	conn, _, err := s.dialer.DialContext(ctx, s.joinURL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.joinURL, err)
	}
	selfID, err := s.awaitAck(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}
	join, err := encodeEnvelope(EventUserJoin, JoinRequest{Nickname: nickname, Color: color})
	if err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.self = UserInfo{UserID: selfID, Nickname: nickname, Color: color}
	s.peers = make(map[string]UserInfo)
	s.mu.Unlock()

	s.watchLiveness(conn, done)
	go s.readLoop(conn, done)
	return nil
}

// watchLiveness arms a read deadline that any frame, ping or pong extends, and
// pings the relay so a silent network ends readLoop instead of hanging it.
func (s *Synchronizer) watchLiveness(conn *websocket.Conn, done chan struct{}) {
	wait := s.pongWait
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error {
		return extend()
	})
	conn.SetPingHandler(func(data string) error {
		_ = extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go func() {
		ticker := time.NewTicker(wait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
}

func (s *Synchronizer) awaitAck(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(s.ackTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("await connect ack: %w", err)
	}
	envelope, err := decodeEnvelope(payload)
	if err != nil {
		return "", err
	}
	if envelope.Event != EventConnected {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrMalformedPayload, EventConnected, envelope.Event)
	}
	var ack connectedPayload
	if err := decodeData(envelope.Data, &ack); err != nil {
		return "", err
	}
	if ack.UserID == "" {
		return "", fmt.Errorf("%w: connect ack without id", ErrMalformedPayload)
	}
	return ack.UserID, nil
}

func (s *Synchronizer) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.dropConnection(conn, done, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		select {
		case <-done:
			return
		default:
		}
		envelope, err := decodeEnvelope(payload)
		if err != nil {
			log.Printf("ignore frame: %v", err)
			continue
		}
		event, ok := s.translate(envelope)
		if !ok {
			continue
		}
		if !s.deliver(conn, done, event) {
			return
		}
	}
}

// deliver queues event only while conn is still the live session, so nothing
// from a closed or replaced connection lands after Close returns.
func (s *Synchronizer) deliver(conn *websocket.Conn, done chan struct{}, event ServerEvent) bool {
	for {
		s.mu.Lock()
		if s.conn != conn {
			s.mu.Unlock()
			return false
		}
		select {
		case s.events <- event:
			s.mu.Unlock()
			return true
		default:
		}
		s.mu.Unlock()

		// buffer full; wait for the consumer without holding the lock
		select {
		case <-done:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// translate updates the presence view and maps a frame onto a ServerEvent.
func (s *Synchronizer) translate(envelope Envelope) (ServerEvent, bool) {
	switch envelope.Event {
	case EventUserJoined:
		var info UserInfo
		if err := decodeData(envelope.Data, &info); err != nil || info.UserID == "" {
			return nil, false
		}
		s.mu.Lock()
		self := info.UserID == s.self.UserID
		if self {
			s.self = info
		} else {
			s.peers[info.UserID] = info
		}
		s.mu.Unlock()
		return PeerJoined{Peer: info, Self: self}, true
	case EventExistingUsers:
		var users []UserInfo
		if err := decodeData(envelope.Data, &users); err != nil {
			return nil, false
		}
		s.mu.Lock()
		s.peers = make(map[string]UserInfo, len(users))
		for _, u := range users {
			if u.UserID != s.self.UserID {
				s.peers[u.UserID] = u
			}
		}
		s.mu.Unlock()
		return RosterReceived{Users: users}, true
	case EventUserLeft:
		var left userLeftPayload
		if err := decodeData(envelope.Data, &left); err != nil || left.UserID == "" {
			return nil, false
		}
		s.mu.Lock()
		delete(s.peers, left.UserID)
		s.mu.Unlock()
		return PeerLeft{UserID: left.UserID}, true
	case EventUserOperation:
		var op RelayedOperation
		if err := json.Unmarshal(envelope.Data, &op); err != nil {
			log.Printf("ignore operation: %v", err)
			return nil, false
		}
		return OperationReceived{Op: op}, true
	}
	return nil, false
}

func (s *Synchronizer) dropConnection(conn *websocket.Conn, done chan struct{}, cause error) {
	conn.Close()
	s.mu.Lock()
	if s.conn != conn {
		// Close already tore this session down
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.peers = make(map[string]UserInfo)
	close(done)
	s.mu.Unlock()

	select {
	case s.events <- Disconnected{Err: cause}:
	default:
		log.Printf("event buffer full, disconnect not delivered: %v", cause)
	}
}

// Close ends the session. No Disconnected event follows a Close.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.conn = nil
	s.peers = make(map[string]UserInfo)
	close(s.done)
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return conn.Close()
}

func (s *Synchronizer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SelfID is the id the relay assigned on the latest connect.
func (s *Synchronizer) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self.UserID
}

func (s *Synchronizer) Self() UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Peers returns the other joined users ordered by nickname.
func (s *Synchronizer) Peers() []UserInfo {
	s.mu.Lock()
	peers := make([]UserInfo, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].Nickname == peers[j].Nickname {
			return peers[i].UserID < peers[j].UserID
		}
		return peers[i].Nickname < peers[j].Nickname
	})
	return peers
}

func (s *Synchronizer) EmitAdd(op AddMaterial) error {
	return s.send(op.Kind(), op)
}

func (s *Synchronizer) EmitMove(op MoveMaterial) error {
	return s.send(op.Kind(), op)
}

func (s *Synchronizer) EmitResize(op ResizeMaterial) error {
	return s.send(op.Kind(), op)
}

func (s *Synchronizer) EmitDelete(op DeleteMaterial) error {
	return s.send(op.Kind(), op)
}

func (s *Synchronizer) EmitBackgroundChanged(op BackgroundChanged) error {
	return s.send(op.Kind(), op)
}

func (s *Synchronizer) send(event string, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}
