package internal

import (
	"encoding/json"
	"fmt"
)

// Operation is one user-originated canvas edit. The concrete types below are the
// only implementations; handlers switch over them with a type switch.
type Operation interface {
	// Kind returns the event name the operation travels under.
	Kind() string
	isOperation()
}

type AddMaterial struct {
	MaterialID  string  `json:"materialId"`
	MaterialURL string  `json:"materialUrl"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

type MoveMaterial struct {
	MaterialID string  `json:"materialId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

type ResizeMaterial struct {
	MaterialID string  `json:"materialId"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type DeleteMaterial struct {
	MaterialID string `json:"materialId"`
}

type BackgroundChanged struct {
	BackgroundURL string `json:"backgroundUrl"`
}

func (AddMaterial) Kind() string       { return EventAddMaterial }
func (MoveMaterial) Kind() string      { return EventMoveMaterial }
func (ResizeMaterial) Kind() string    { return EventResizeMaterial }
func (DeleteMaterial) Kind() string    { return EventDeleteMaterial }
func (BackgroundChanged) Kind() string { return EventBackgroundChanged }

func (AddMaterial) isOperation()       {}
func (MoveMaterial) isOperation()      {}
func (ResizeMaterial) isOperation()    {}
func (DeleteMaterial) isOperation()    {}
func (BackgroundChanged) isOperation() {}

// DecodeOperation turns a client event into its Operation. Geometry is not
// validated here; receivers decide how to draw odd values.
func DecodeOperation(event string, data json.RawMessage) (Operation, error) {
	switch event {
	case EventAddMaterial:
		var op AddMaterial
		err := decodeData(data, &op)
		return op, err
	case EventMoveMaterial:
		var op MoveMaterial
		err := decodeData(data, &op)
		return op, err
	case EventResizeMaterial:
		var op ResizeMaterial
		err := decodeData(data, &op)
		return op, err
	case EventDeleteMaterial:
		var op DeleteMaterial
		err := decodeData(data, &op)
		return op, err
	case EventBackgroundChanged:
		var op BackgroundChanged
		err := decodeData(data, &op)
		return op, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
}

// Stamp is the sender identity the relay attaches to an operation. It always comes
// from the server-side registry, never from the sender's payload.
type Stamp struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

// RelayedOperation is the payload of user-operation: the variant's own fields
// flattened next to the stamp and a "type" tag naming the originating event.
type RelayedOperation struct {
	Stamp
	Op Operation
}

type operationHeader struct {
	Type string `json:"type"`
	Stamp
}

func (r RelayedOperation) MarshalJSON() ([]byte, error) {
	if r.Op == nil {
		return nil, fmt.Errorf("%w: relayed operation without body", ErrMalformedPayload)
	}
	head := operationHeader{Type: r.Op.Kind(), Stamp: r.Stamp}
	switch op := r.Op.(type) {
	case AddMaterial:
		return json.Marshal(struct {
			operationHeader
			AddMaterial
		}{head, op})
	case MoveMaterial:
		return json.Marshal(struct {
			operationHeader
			MoveMaterial
		}{head, op})
	case ResizeMaterial:
		return json.Marshal(struct {
			operationHeader
			ResizeMaterial
		}{head, op})
	case DeleteMaterial:
		return json.Marshal(struct {
			operationHeader
			DeleteMaterial
		}{head, op})
	case BackgroundChanged:
		return json.Marshal(struct {
			operationHeader
			BackgroundChanged
		}{head, op})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, r.Op)
}

func (r *RelayedOperation) UnmarshalJSON(data []byte) error {
	var head operationHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	op, err := DecodeOperation(head.Type, data)
	if err != nil {
		return err
	}
	r.Stamp = head.Stamp
	r.Op = op
	return nil
}

// GhostID is the key a receiving client files a remote material under.
func GhostID(userID, materialID string) string {
	return "ghost-" + userID + "-" + materialID
}
