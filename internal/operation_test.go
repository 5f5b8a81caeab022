package internal

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeOperation(t *testing.T) {
	op, err := DecodeOperation(EventResizeMaterial, json.RawMessage(`{"materialId":"material-4","width":120,"height":80}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	resize, ok := op.(ResizeMaterial)
	if !ok || resize.MaterialID != "material-4" || resize.Width != 120 || resize.Height != 80 {
		t.Fatalf("unexpected op %#v", op)
	}

	if _, err := DecodeOperation("rotate-material", nil); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := DecodeOperation(EventMoveMaterial, json.RawMessage(`{"x":"left"}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestRelayedOperationWireShape(t *testing.T) {
	relayed := RelayedOperation{
		Stamp: Stamp{UserID: "u1", Nickname: "alice", Color: "#ffffff", Timestamp: 42},
		Op:    AddMaterial{MaterialID: "material-1", MaterialURL: "/uploads/a.png", X: 1, Y: 2, Width: 3, Height: 4},
	}
	data, err := json.Marshal(relayed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range map[string]interface{}{
		"type":        EventAddMaterial,
		"userId":      "u1",
		"nickname":    "alice",
		"color":       "#ffffff",
		"timestamp":   float64(42),
		"materialId":  "material-1",
		"materialUrl": "/uploads/a.png",
		"width":       float64(3),
	} {
		if fields[key] != want {
			t.Fatalf("field %s = %v, want %v", key, fields[key], want)
		}
	}

	var decoded RelayedOperation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Stamp != relayed.Stamp || decoded.Op != relayed.Op {
		t.Fatalf("decoded %+v, want %+v", decoded, relayed)
	}
}

func TestRelayedOperationRejectsUnknownType(t *testing.T) {
	var decoded RelayedOperation
	err := json.Unmarshal([]byte(`{"type":"explode","userId":"u1"}`), &decoded)
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := json.Marshal(RelayedOperation{}); err == nil {
		t.Fatal("expected an error for a relayed operation without body")
	}
}

func TestGhostID(t *testing.T) {
	if got := GhostID("u1", "material-3"); got != "ghost-u1-material-3" {
		t.Fatalf("unexpected ghost id %q", got)
	}
}
