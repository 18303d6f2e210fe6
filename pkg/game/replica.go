package game

import "math"

// Avatar is the client view of a player.
// Pos is what gets drawn, Target is the latest host position it eases towards.
type Avatar struct {
	Id          int
	Alive       bool
	Gx, Gz      int
	Tx, Tz      int
	Moving      bool
	BombRange   int
	MaxBombs    int
	ActiveBombs int
	Speed       float64
	DeathTimer  float64
	Visible     bool

	// Scale shrinks during the death animation.
	Scale    float64
	Pos      [3]float64
	Ry       float64
	Target   [3]float64
	TargetRy float64
}

// Decoration is a client-side object living on a cell:
// a bomb, an explosion (keyed by its leading cell), a power-up or a block.
type Decoration struct {
	Cell
	Kind  string
	Range int
	Owner int
	Timer float64
	Cells []Cell
}

// Replica is the client reconstruction of the host world.
// Only the match goroutine touches it.
type Replica struct {
	Phase      Phase
	Round      int
	Scores     []int
	Countdown  float64
	Grid       *Grid
	Players    map[int]*Avatar
	Bombs      map[Cell]*Decoration
	Explosions map[Cell]*Decoration
	PowerUps   map[Cell]*Decoration
	Blocks     map[Cell]*Decoration

	// Destroyed counts removed decorations by kind.
	Destroyed map[string]int
}

func NewReplica() *Replica {
	return &Replica{
		Phase:      PhaseMenu,
		Players:    make(map[int]*Avatar),
		Bombs:      make(map[Cell]*Decoration),
		Explosions: make(map[Cell]*Decoration),
		PowerUps:   make(map[Cell]*Decoration),
		Blocks:     make(map[Cell]*Decoration),
		Destroyed:  make(map[string]int),
	}
}

// Load prepares the replica for a selected map, the same way the host builds its world.
func (r *Replica) Load(m *MapDef) {
	r.SetGrid(m.Grid())
	for id := range r.Players {
		delete(r.Players, id)
	}
	r.clear(r.Bombs)
	r.clear(r.Explosions)
	r.clear(r.PowerUps)
	r.Phase = PhaseCountdown
}

func (r *Replica) clear(m map[Cell]*Decoration) {
	for c, d := range m {
		r.Destroyed[d.Kind]++
		delete(m, c)
	}
}

// SetGrid replaces the whole grid, blocks on cells that became empty go away
// and new block cells get one.
func (r *Replica) SetGrid(g *Grid) {
	r.Grid = g
	for c, d := range r.Blocks {
		if g.Get(c.X, c.Z) == Empty {
			r.Destroyed[d.Kind]++
			delete(r.Blocks, c)
		}
	}
	for z := 0; z < g.Rows(); z++ {
		for x := 0; x < g.Cols(); x++ {
			c := Cell{X: x, Z: z}
			if _, ok := r.Blocks[c]; !ok && g.Get(x, z) == Block {
				r.Blocks[c] = &Decoration{Cell: c, Kind: "block"}
			}
		}
	}
}

// SetCell changes one cell. Deltas for unknown cells are ignored.
func (r *Replica) SetCell(c Cell, v int) {
	if r.Grid == nil || !r.Grid.In(c.X, c.Z) {
		return
	}
	r.Grid.Set(c.X, c.Z, v)
	if v == Empty {
		if d, ok := r.Blocks[c]; ok {
			r.Destroyed[d.Kind]++
			delete(r.Blocks, c)
		}
	}
	if v == Block {
		if _, ok := r.Blocks[c]; !ok {
			r.Blocks[c] = &Decoration{Cell: c, Kind: "block"}
		}
	}
}

// Avatar returns the view of a player, created on first sighting.
func (r *Replica) Avatar(id int) (a *Avatar, created bool) {
	if a, ok := r.Players[id]; ok {
		return a, false
	}
	a = &Avatar{Id: id, Alive: true, Visible: true, Scale: 1}
	r.Players[id] = a
	return a, true
}

// Snap puts the avatar at its target at once.
func (a *Avatar) Snap() {
	a.Pos = a.Target
	a.Ry = a.TargetRy
}

// Die starts the death animation.
func (a *Avatar) Die() {
	a.Alive = false
	a.DeathTimer = DeathTime
}

// Revive resets the visuals of a respawned player.
func (a *Avatar) Revive() {
	a.Alive = true
	a.Visible = true
	a.Scale = 1
	a.Snap()
}

// Ease moves the avatar towards its target by the fraction alpha.
// Angles take the short way around.
func (a *Avatar) Ease(alpha float64) {
	for i := range a.Pos {
		a.Pos[i] += (a.Target[i] - a.Pos[i]) * alpha
	}
	d := math.Remainder(a.TargetRy-a.Ry, 2*math.Pi)
	a.Ry += d * alpha
}

// Animate runs the local-only death shrink.
func (a *Avatar) Animate(dt float64) {
	if a.Alive || a.DeathTimer <= 0 {
		return
	}
	a.DeathTimer = math.Max(0, a.DeathTimer-dt)
	a.Scale = a.DeathTimer / DeathTime
	if a.DeathTimer == 0 {
		a.Visible = false
	}
}
