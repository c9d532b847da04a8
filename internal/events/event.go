package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Type enumerates the event kinds routed over a client channel.
// The set is closed: Decode rejects anything else at the transport boundary,
// so downstream routing can switch over it without re-validating.
type Type string

const (
	TypeNotification Type = "notification"
	TypeMessage      Type = "message"
	TypeBooking      Type = "booking"
	TypeVehicle      Type = "vehicle"
	TypeGPS          Type = "gps"
	TypeDashboard    Type = "dashboard"
	// TypeConnected is the handshake ack, sent once per handle, no payload.
	TypeConnected Type = "connected"
)

func (t Type) Valid() bool {
	switch t {
	case TypeNotification, TypeMessage, TypeBooking, TypeVehicle, TypeGPS, TypeDashboard, TypeConnected:
		return true
	}
	return false
}

type Action string

const (
	ActionNone   Action = ""
	ActionNew    Action = "new"
	ActionUpdate Action = "update"
)

func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionNew, ActionUpdate:
		return true
	}
	return false
}

// Event is one frame on the wire: { type, action?, data?, message?, userId? }.
type Event struct {
	Type    Type            `json:"type"`
	Action  Action          `json:"action,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	UserID  uint64          `json:"userId,omitempty"`
}

// Connected builds the handshake ack event.
func Connected() Event {
	return Event{Type: TypeConnected, Message: "ok"}
}

func New(t Type, a Action, data any) (Event, error) {
	ev := Event{Type: t, Action: a}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, errors.Wrap(err, "marshal event data")
		}
		ev.Data = b
	}
	return ev, nil
}

func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	return b, errors.Wrap(err, "encode event")
}

// Decode parses and validates one frame. Unknown type/action tags are
// rejected here so receivers never see an event outside the closed set.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if !e.Type.Valid() {
		return Event{}, errors.Errorf("unknown event type %q", e.Type)
	}
	if !e.Action.Valid() {
		return Event{}, errors.Errorf("unknown event action %q", e.Action)
	}
	return e, nil
}
