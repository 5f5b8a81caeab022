package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// event names shared by the server and the client synchronizer
const (
	EventConnected         = "connected"
	EventUserJoin          = "user-join"
	EventUserJoined        = "user-joined"
	EventExistingUsers     = "existing-users"
	EventUserLeft          = "user-left"
	EventUserOperation     = "user-operation"
	EventAddMaterial       = "add-material"
	EventMoveMaterial      = "move-material"
	EventResizeMaterial    = "resize-material"
	EventDeleteMaterial    = "delete-material"
	EventBackgroundChanged = "background-changed"
)

var (
	// ErrUnknownEvent is returned when an envelope names an event this side does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedPayload is returned when an envelope or its data cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope is the JSON frame carried by every websocket text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of user-join. Both fields are optional.
type JoinRequest struct {
	Nickname string `json:"nickname,omitempty"`
	Color    string `json:"color,omitempty"`
}

// UserInfo is the public identity announced in user-joined and existing-users.
type UserInfo struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

type connectedPayload struct {
	UserID string `json:"userId"`
}

type userLeftPayload struct {
	UserID string `json:"userId"`
}

func encodeEnvelope(event string, payload interface{}) ([]byte, error) {
	envelope := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		envelope.Data = data
	}
	return json.Marshal(envelope)
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedPayload)
	}
	return envelope, nil
}

// decodeData unmarshals an envelope payload. An absent payload leaves out untouched.
func decodeData(data json.RawMessage, out interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
