// Package input provides interchangeable player input sources.
//
// Every source (local keys, remote network player, a bot) answers the same three
// questions so the simulation doesn't care where the input comes from:
// is an action held right now, was it pressed since the last tick,
// and move on to the next tick.
package input

import (
	"sync"

	"github.com/blastzone/netplay/pkg/api"
)

type Action string

const (
	Up    Action = "UP"
	Down  Action = "DOWN"
	Left  Action = "LEFT"
	Right Action = "RIGHT"
	Bomb  Action = "BOMB"
)

var Actions = [...]Action{Up, Down, Left, Right, Bomb}

type Source interface {
	// IsDown tells if the action is held.
	IsDown(a Action) bool
	// WasPressed tells if the action went down during the previous tick.
	WasPressed(a Action) bool
	// Update advances the edge detection window, once per simulation tick.
	Update()
}

func (a Action) bit() uint8 {
	switch a {
	case Up:
		return 1 << 0
	case Down:
		return 1 << 1
	case Left:
		return 1 << 2
	case Right:
		return 1 << 3
	case Bomb:
		return 1 << 4
	}
	return 0
}

func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.bit() != 0
}

// state keeps level and edge bits for all actions.
// pending collects edges until the next Update, pressed is what
// the current tick sees.
type state struct {
	mu      sync.Mutex
	held    uint8
	pending uint8
	pressed uint8
}

func (s *state) IsDown(a Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held&a.bit() != 0
}

func (s *state) WasPressed(a Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed&a.bit() != 0
}

func (s *state) Update() {
	s.mu.Lock()
	s.pressed, s.pending = s.pending, 0
	s.mu.Unlock()
}

func (s *state) Reset() {
	s.mu.Lock()
	s.held, s.pending, s.pressed = 0, 0, 0
	s.mu.Unlock()
}

// Snapshot reads a source into a wire message.
func Snapshot(src Source, playerId int) api.PlayerInput {
	in := api.PlayerInput{
		Keys: api.Keys{
			Up:    src.IsDown(Up),
			Down:  src.IsDown(Down),
			Left:  src.IsDown(Left),
			Right: src.IsDown(Right),
			Bomb:  src.IsDown(Bomb),
		},
		Pressed:  []string{},
		PlayerId: playerId,
	}
	for _, a := range Actions {
		if src.WasPressed(a) {
			in.Pressed = append(in.Pressed, string(a))
		}
	}
	return in
}

// Idle never presses anything. It takes the place of a computer
// player source, bot brains live outside this module, and of a local
// player without a keyboard.
type Idle struct{}

func (Idle) IsDown(Action) bool     { return false }
func (Idle) WasPressed(Action) bool { return false }
func (Idle) Update()                {}
