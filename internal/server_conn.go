package internal

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
	sendBuffer = 256
)

// Conn wraps one websocket and its outbound queue. Its id doubles as the user id
// once the peer joins.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

func (conn *Conn) ID() string {
	return conn.id
}

func (conn *Conn) readPump(hub *Hub) {
	defer func() {
		hub.detach(conn)
		conn.ws.Close()
	}()
	conn.ws.SetReadLimit(maxMsgSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logf("connection %s read error: %v", conn.id, err)
			}
			return
		}
		envelope, err := decodeEnvelope(payload)
		if err != nil {
			hub.logf("connection %s sent bad frame: %v", conn.id, err)
			hub.metrics.IncDropped()
			continue
		}
		if !hub.deliver(conn, envelope) {
			return
		}
	}
}

func (conn *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()
	for {
		select {
		case message, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the queue; say goodbye and let readPump unwind
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
