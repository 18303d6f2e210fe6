package input

import "github.com/blastzone/netplay/pkg/api"

// Remote is a virtual device fed by player_input messages.
// Messages may come at any cadence, their edges are kept
// until the next local tick picks them up.
type Remote struct {
	state
}

func NewRemote() *Remote { return &Remote{} }

// Apply sets the held state and queues the edges from a message.
// An edge listed several times before a tick fires once.
func (r *Remote) Apply(in api.PlayerInput) {
	var held uint8
	for a, down := range map[Action]bool{
		Up:    in.Keys.Up,
		Down:  in.Keys.Down,
		Left:  in.Keys.Left,
		Right: in.Keys.Right,
		Bomb:  in.Keys.Bomb,
	} {
		if down {
			held |= a.bit()
		}
	}
	var edges uint8
	for _, p := range in.Pressed {
		if a, ok := ParseAction(p); ok {
			edges |= a.bit()
		}
	}

	r.mu.Lock()
	r.held = held
	r.pending |= edges
	r.mu.Unlock()
}
