package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ghostcanvas/internal/storage"
)

const testTimeout = 3 * time.Second

// startTestServer runs a relay behind httptest with its hub goroutine.
func startTestServer(t *testing.T, opts ServerOptions) (*Server, *httptest.Server) {
	t.Helper()
	opts.Quiet = true
	server := NewServer(opts)
	ts := httptestServer(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		server.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-hubDone
	})
	return server, ts
}

func httptestServer(t *testing.T, server *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(server.Routes("/join"))
	t.Cleanup(ts.Close)
	return ts
}

func joinURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/join"
}

func dialTest(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(joinURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	envelope, err := decodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode envelope %s: %v", payload, err)
	}
	return envelope
}

func expectEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	envelope := readEnvelope(t, conn)
	if envelope.Event != event {
		t.Fatalf("expected %s, got %s (%s)", event, envelope.Event, envelope.Data)
	}
	return envelope
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// connectAndJoin dials, consumes the ack and completes a join, returning the
// identity the relay assigned along with the roster it sent back.
func connectAndJoin(t *testing.T, ts *httptest.Server, nickname, color string) (*websocket.Conn, UserInfo, []UserInfo) {
	t.Helper()
	conn := dialTest(t, ts)
	var ack connectedPayload
	if err := json.Unmarshal(expectEvent(t, conn, EventConnected).Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	sendEvent(t, conn, EventUserJoin, JoinRequest{Nickname: nickname, Color: color})

	var self UserInfo
	if err := json.Unmarshal(expectEvent(t, conn, EventUserJoined).Data, &self); err != nil {
		t.Fatalf("decode user-joined: %v", err)
	}
	if self.UserID != ack.UserID {
		t.Fatalf("user-joined id %s does not match ack %s", self.UserID, ack.UserID)
	}
	var roster []UserInfo
	if err := json.Unmarshal(expectEvent(t, conn, EventExistingUsers).Data, &roster); err != nil {
		t.Fatalf("decode existing-users: %v", err)
	}
	return conn, self, roster
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x + y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestAssets(t *testing.T) *AssetStore {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	assets, err := NewAssetStore(filepath.Join(dir, "uploads"), store)
	if err != nil {
		t.Fatalf("asset store: %v", err)
	}
	return assets
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
