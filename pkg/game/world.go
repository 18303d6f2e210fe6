package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/blastzone/netplay/pkg/input"
)

type Phase string

const (
	PhaseMenu      Phase = "MENU"
	PhaseMapSelect Phase = "MAP_SELECT"
	PhaseCountdown Phase = "COUNTDOWN"
	PhasePlaying   Phase = "PLAYING"
	PhaseRoundOver Phase = "ROUND_OVER"
	PhaseGameOver  Phase = "GAME_OVER"
)

const (
	MaxPlayers = 4
	MaxRounds  = 5
	WinsNeeded = 3

	BombFuse      = 3.0
	ExplosionTime = 0.5
	DeathTime     = 0.5
	BaseSpeed     = 4.0
	MaxSpeed      = 6.0
	SpeedStep     = 0.5
	MaxBombRange  = 6
	MaxBombCount  = 5
	DropChance    = 0.35

	CountdownTime  = 3.5
	CountdownGrace = -0.6
	RoundEndDelay  = 1.5
	RoundOverTime  = 3.0
)

type PowerUpType string

const (
	PowerUpRange PowerUpType = "bomb_range"
	PowerUpBomb  PowerUpType = "extra_bomb"
	PowerUpSpeed PowerUpType = "speed_boost"
)

var PowerUpTypes = [...]PowerUpType{PowerUpRange, PowerUpBomb, PowerUpSpeed}

func (t PowerUpType) Valid() bool {
	switch t {
	case PowerUpRange, PowerUpBomb, PowerUpSpeed:
		return true
	}
	return false
}

var ErrPlayers = errors.New("bad number of players")

type Player struct {
	Id          int
	Alive       bool
	Gx, Gz      int
	Tx, Tz      int
	X, Y, Z     float64
	Ry          float64
	Moving      bool
	BombRange   int
	MaxBombs    int
	ActiveBombs int
	Speed       float64
	DeathTimer  float64
	Visible     bool
	// Gone players left the match and stay dead.
	Gone bool

	bob float64
}

func (p *Player) spawn(c Cell) {
	p.Gx, p.Gz, p.Tx, p.Tz = c.X, c.Z, c.X, c.Z
	p.X, p.Y, p.Z, p.Ry = float64(c.X), 0, float64(c.Z), 0
	p.Alive = !p.Gone
	p.Visible = !p.Gone
	p.Moving = false
	p.BombRange, p.MaxBombs, p.ActiveBombs = 1, 1, 0
	p.Speed = BaseSpeed
	p.DeathTimer = 0
	p.bob = 0
}

func (p *Player) die() {
	if !p.Alive {
		return
	}
	p.Alive = false
	p.Moving = false
	p.DeathTimer = DeathTime
}

func (p *Player) apply(t PowerUpType) {
	switch t {
	case PowerUpRange:
		p.BombRange = min(p.BombRange+1, MaxBombRange)
	case PowerUpBomb:
		p.MaxBombs = min(p.MaxBombs+1, MaxBombCount)
	case PowerUpSpeed:
		p.Speed = math.Min(p.Speed+SpeedStep, MaxSpeed)
	}
}

type BombEntity struct {
	Cell
	Range   int
	OwnerId int
	Timer   float64

	detonated bool
}

type Explosion struct {
	// Cells start with the detonation cell.
	Cells []Cell
	Timer float64
}

func (e *Explosion) Hits(c Cell) bool {
	for _, ec := range e.Cells {
		if ec == c {
			return true
		}
	}
	return false
}

type PowerUp struct {
	Cell
	Type PowerUpType
}

// World is the authoritative simulation of a match.
// It is not safe for concurrent use.
type World struct {
	Map        *MapDef
	MapIndex   int
	Grid       *Grid
	Phase      Phase
	Round      int
	Scores     []int
	Countdown  float64
	Players    []*Player
	Bombs      []*BombEntity
	Explosions []*Explosion
	PowerUps   []*PowerUp

	rng        *rand.Rand
	endDelay   float64
	phaseTimer float64
	winner     int
	queue      []*BombEntity
}

// NewWorld makes a match on a map for the given player ids.
// Ids need not be consecutive, Scores is indexed by id-1.
func NewWorld(mapIndex int, ids []int, seed int64) (*World, error) {
	m, err := MapByIndex(mapIndex)
	if err != nil {
		return nil, err
	}
	if len(ids) < 1 || len(ids) > MaxPlayers {
		return nil, fmt.Errorf("%w: %v", ErrPlayers, len(ids))
	}
	w := World{
		Map:      m,
		MapIndex: mapIndex,
		Grid:     m.Grid(),
		Phase:    PhaseMapSelect,
		rng:      rand.New(rand.NewSource(seed)),
	}
	top := 0
	for _, id := range ids {
		if id < 1 || id > MaxPlayers || w.Player(id) != nil {
			return nil, fmt.Errorf("%w: bad id %v", ErrPlayers, id)
		}
		w.Players = append(w.Players, &Player{Id: id})
		if id > top {
			top = id
		}
	}
	w.Scores = make([]int, top)
	return &w, nil
}

func (w *World) Player(id int) *Player {
	for _, p := range w.Players {
		if p.Id == id {
			return p
		}
	}
	return nil
}

// Winner of the last finished round, 0 for a draw.
func (w *World) Winner() int { return w.winner }

// StartRound resets the arena and begins the countdown of the next round.
func (w *World) StartRound() {
	w.Round++
	w.Grid = w.Map.Grid()
	w.Bombs, w.Explosions, w.PowerUps, w.queue = nil, nil, nil, nil
	for _, p := range w.Players {
		p.spawn(w.Map.Spawn(p.Id))
	}
	w.endDelay, w.winner = 0, 0
	w.Countdown = CountdownTime
	w.Phase = PhaseCountdown
}

// Leave removes a player from the rest of the match,
// it returns false for an unknown or already gone player.
func (w *World) Leave(id int) bool {
	p := w.Player(id)
	if p == nil || p.Gone {
		return false
	}
	p.Gone = true
	p.die()
	p.DeathTimer, p.Visible = 0, false
	return true
}

// Active counts players still in the match.
func (w *World) Active() int {
	n := 0
	for _, p := range w.Players {
		if !p.Gone {
			n++
		}
	}
	return n
}

// Update advances the simulation by dt seconds.
// Sources are indexed by player id, a missing one is idle.
// It returns the phase the world switched to, if any.
func (w *World) Update(dt float64, sources map[int]input.Source) (Phase, bool) {
	from := w.Phase
	switch w.Phase {
	case PhaseCountdown:
		w.Countdown -= dt
		if w.Countdown <= CountdownGrace {
			w.Phase = PhasePlaying
		}
	case PhasePlaying:
		w.play(dt, sources)
	case PhaseRoundOver:
		w.phaseTimer -= dt
		if w.phaseTimer <= 0 {
			w.StartRound()
		}
	}
	for _, src := range sources {
		src.Update()
	}
	return w.Phase, w.Phase != from
}

func (w *World) play(dt float64, sources map[int]input.Source) {
	for _, p := range w.Players {
		src, ok := sources[p.Id]
		if !ok || src == nil {
			src = input.Idle{}
		}
		if c, ok := w.movePlayer(p, dt, src); ok {
			w.placeBomb(p, c)
		}
	}

	for _, b := range w.Bombs {
		b.Timer -= dt
	}
	for _, b := range append([]*BombEntity(nil), w.Bombs...) {
		if b.Timer <= 0 && !b.detonated {
			w.detonate(b)
		}
	}
	for len(w.queue) > 0 {
		b := w.queue[0]
		w.queue = w.queue[1:]
		if !b.detonated {
			w.detonate(b)
		}
	}

	live := w.Explosions[:0]
	for _, e := range w.Explosions {
		e.Timer -= dt
		if e.Timer > 0 {
			live = append(live, e)
		}
	}
	w.Explosions = live

	for _, p := range w.Players {
		if !p.Alive {
			continue
		}
		pos := Cell{X: p.Gx, Z: p.Gz}
		kept := w.PowerUps[:0]
		for _, pu := range w.PowerUps {
			if pu.Cell == pos {
				p.apply(pu.Type)
				continue
			}
			kept = append(kept, pu)
		}
		w.PowerUps = kept
		for _, e := range w.Explosions {
			if e.Hits(pos) {
				p.die()
				break
			}
		}
	}

	w.checkRoundEnd(dt)
}

// movePlayer walks a player between cells, returns the cell of a requested bomb.
func (w *World) movePlayer(p *Player, dt float64, src input.Source) (Cell, bool) {
	if !p.Alive {
		if p.DeathTimer > 0 {
			p.DeathTimer -= dt
			p.Ry += dt * 15
		}
		if p.DeathTimer <= 0 {
			p.DeathTimer = 0
			p.Visible = false
		}
		return Cell{}, false
	}

	dx, dz := float64(p.Tx)-p.X, float64(p.Tz)-p.Z
	dist := math.Hypot(dx, dz)
	if dist < 0.05 {
		p.X, p.Z = float64(p.Tx), float64(p.Tz)
		p.Gx, p.Gz = p.Tx, p.Tz
		p.Moving = false

		mx, mz := 0, 0
		if src.IsDown(input.Left) {
			mx = -1
		} else if src.IsDown(input.Right) {
			mx = 1
		}
		if mx == 0 {
			if src.IsDown(input.Up) {
				mz = -1
			} else if src.IsDown(input.Down) {
				mz = 1
			}
		}
		if (mx != 0 || mz != 0) && w.Grid.Walkable(p.Gx+mx, p.Gz+mz) {
			p.Tx, p.Tz = p.Gx+mx, p.Gz+mz
			p.Moving = true
			p.Ry = math.Atan2(float64(mx), float64(mz))
		}
	} else {
		step := math.Min(p.Speed*dt, dist)
		p.X += dx / dist * step
		p.Z += dz / dist * step
		p.Moving = true
	}

	if p.Moving {
		p.bob += dt * p.Speed * 3
		p.Y = math.Abs(math.Sin(p.bob)) * 0.06
	} else {
		p.bob, p.Y = 0, 0
	}

	if src.WasPressed(input.Bomb) && p.ActiveBombs < p.MaxBombs {
		return Cell{X: p.Gx, Z: p.Gz}, true
	}
	return Cell{}, false
}

func (w *World) placeBomb(p *Player, c Cell) {
	if w.Grid.Get(c.X, c.Z) != Empty {
		return
	}
	w.Bombs = append(w.Bombs, &BombEntity{Cell: c, Range: p.BombRange, OwnerId: p.Id, Timer: BombFuse})
	w.Grid.Set(c.X, c.Z, Bomb)
	p.ActiveBombs++
}

func (w *World) bombAt(c Cell) *BombEntity {
	for _, b := range w.Bombs {
		if b.Cell == c {
			return b
		}
	}
	return nil
}

func (w *World) detonate(b *BombEntity) {
	b.detonated = true
	w.Grid.Set(b.X, b.Z, Empty)
	if owner := w.Player(b.OwnerId); owner != nil && owner.ActiveBombs > 0 {
		owner.ActiveBombs--
	}

	e := Explosion{Cells: []Cell{b.Cell}, Timer: ExplosionTime}
	for _, d := range [...]Cell{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
		for i := 1; i <= b.Range; i++ {
			c := Cell{X: b.X + d.X*i, Z: b.Z + d.Z*i}
			v := w.Grid.Get(c.X, c.Z)
			if v == Wall {
				break
			}
			e.Cells = append(e.Cells, c)
			if v == Block {
				w.Grid.Set(c.X, c.Z, Empty)
				if w.rng.Float64() < DropChance {
					t := PowerUpTypes[w.rng.Intn(len(PowerUpTypes))]
					w.PowerUps = append(w.PowerUps, &PowerUp{Cell: c, Type: t})
				}
				break
			}
			if v == Bomb {
				if chained := w.bombAt(c); chained != nil && !chained.detonated {
					w.queue = append(w.queue, chained)
				}
				break
			}
		}
	}
	w.Explosions = append(w.Explosions, &e)

	bombs := w.Bombs[:0]
	for _, x := range w.Bombs {
		if x != b {
			bombs = append(bombs, x)
		}
	}
	w.Bombs = bombs
}

func (w *World) checkRoundEnd(dt float64) {
	if len(w.Players) < 2 {
		return
	}
	var alive []*Player
	for _, p := range w.Players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) > 1 {
		return
	}
	w.endDelay += dt
	if w.endDelay <= RoundEndDelay {
		return
	}
	w.winner = 0
	if len(alive) == 1 {
		w.winner = alive[0].Id
		w.Scores[w.winner-1]++
	}
	w.phaseTimer = RoundOverTime
	w.Phase = PhaseRoundOver
	if w.Over() {
		w.Phase = PhaseGameOver
	}
}

// Over tells if a player reached the winning score or rounds ran out.
func (w *World) Over() bool {
	if w.Round >= MaxRounds {
		return true
	}
	for _, s := range w.Scores {
		if s >= WinsNeeded {
			return true
		}
	}
	return false
}

// Champion is the player with the best score, 0 on a tie.
func (w *World) Champion() int {
	best, id := -1, 0
	for _, p := range w.Players {
		s := w.Scores[p.Id-1]
		switch {
		case s > best:
			best, id = s, p.Id
		case s == best:
			id = 0
		}
	}
	return id
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
