// Package api defines the messages exchanged between room members.
//
// Each message (over the relay or over a peer data channel) is a JSON-encoded "packet"
// of the following structure:
//
//	t - (required) one of the predefined message kinds;
//	f - (optional) the player id of the sender;
//	p - (optional) packet payload with the kind-specific data.
//
// The kind tells how to unwrap the payload and who is allowed to produce it:
// only the host emits state snapshots and session-control events,
// only clients emit input.
//
// Example:
//
//	{"t":"player_input","f":2,"p":{"keys":{"UP":true,"DOWN":false,"LEFT":false,"RIGHT":false,"BOMB":true},"pressed":["BOMB"],"playerId":2}}
package api

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

type Kind string

const (
	WebrtcOffer  Kind = "offer"
	WebrtcAnswer Kind = "answer"
	WebrtcIce    Kind = "ice"
	AssignId     Kind = "player_id_assigned"
	State        Kind = "game_state"
	Input        Kind = "player_input"
	SelectMap    Kind = "map_selected"
	Event        Kind = "game_event"
)

// Producer tells which side of the star may emit a kind.
type Producer uint8

const (
	AnyPeer Producer = iota
	HostOnly
	ClientOnly
)

// HostId is the player id reserved for the room host.
const HostId = 1

func (k Kind) Valid() bool {
	switch k {
	case WebrtcOffer, WebrtcAnswer, WebrtcIce, AssignId, State, Input, SelectMap, Event:
		return true
	}
	return false
}

// IsSignal reports kinds that carry connection setup data.
func (k Kind) IsSignal() bool { return k == WebrtcOffer || k == WebrtcAnswer || k == WebrtcIce }

// IsStream reports kinds that go over the direct data channels.
func (k Kind) IsStream() bool { return k == State || k == Input }

func (k Kind) Producer() Producer {
	switch k {
	case State, SelectMap, Event, AssignId:
		return HostOnly
	case Input:
		return ClientOnly
	}
	return AnyPeer
}

func (k Kind) String() string { return string(k) }

type In struct {
	T       Kind            `json:"t"`
	From    int             `json:"f,omitempty"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	T       Kind        `json:"t"`
	From    int         `json:"f,omitempty"`
	Payload interface{} `json:"p,omitempty"`
}

var (
	ErrMalformed   = errors.New("malformed")
	ErrUnknownKind = errors.New("unknown kind")
)

// Encode makes a compact text frame.
func Encode(kind Kind, from int, payload interface{}) ([]byte, error) {
	return json.Marshal(Out{T: kind, From: from, Payload: payload})
}

// Decode parses a text frame, the payload is left raw.
func Decode(data []byte) (in In, err error) {
	if len(data) == 0 {
		return in, ErrMalformed
	}
	if err = json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !in.T.Valid() {
		return in, fmt.Errorf("%w: %q", ErrUnknownKind, in.T)
	}
	return in, nil
}

// Unwrap decodes the packet payload into T.
func Unwrap[T any](data []byte) (*T, error) {
	out := new(T)
	if len(data) == 0 {
		return nil, ErrMalformed
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}
