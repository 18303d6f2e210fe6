package relay

import "github.com/goccy/go-json"

// Op is the frame operation of the websocket relay protocol.
type Op string

const (
	OpJoin     Op = "join"     // → topic
	OpPublish  Op = "publish"  // → data
	OpLeave    Op = "leave"    // →
	OpMessage  Op = "message"  // ← key of the sender, data
	OpPresence Op = "presence" // ← key of the receiver, keys, joined, left
	OpError    Op = "error"    // ← error
)

type Frame struct {
	Op     Op              `json:"op"`
	Topic  string          `json:"topic,omitempty"`
	Key    string          `json:"key,omitempty"`
	Keys   []string        `json:"keys,omitempty"`
	Joined []string        `json:"joined,omitempty"`
	Left   []string        `json:"left,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (f Frame) Encode() ([]byte, error) { return json.Marshal(f) }

func DecodeFrame(data []byte) (f Frame, err error) {
	err = json.Unmarshal(data, &f)
	return
}

func presenceFrame(p Presence) Frame {
	return Frame{Op: OpPresence, Key: p.Self, Keys: p.Keys, Joined: p.Joined, Left: p.Left}
}

func (f Frame) presence() Presence {
	return Presence{Self: f.Key, Keys: f.Keys, Joined: f.Joined, Left: f.Left}
}
