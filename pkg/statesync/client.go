package statesync

import (
	"math"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/game"
)

// Client applies host snapshots to a replica.
// Snapshots travel over an unordered channel, anything older than
// the last applied one is thrown away.
type Client struct {
	rate float64

	seen   bool
	last   int64
	lastAt time.Time
	clock  func() time.Time
}

func NewClient(conf config.Sync) *Client {
	rate := conf.SmoothingRate
	if rate <= 0 {
		rate = 15
	}
	return &Client{rate: rate, clock: time.Now}
}

// Reset forgets the last timestamp, use it when a new host world starts.
func (c *Client) Reset() {
	c.seen, c.last, c.lastAt = false, 0, time.Time{}
}

// LastTimestamp is the host time of the newest applied snapshot.
func (c *Client) LastTimestamp() int64 { return c.last }

// Since tells how long ago a snapshot was applied, zero before the first one.
func (c *Client) Since(now time.Time) time.Duration {
	if !c.seen {
		return 0
	}
	return now.Sub(c.lastAt)
}

// Stale tells if no snapshot came for longer than d.
func (c *Client) Stale(now time.Time, d time.Duration) bool {
	return c.seen && c.Since(now) > d
}

// Apply reconciles the replica with a snapshot.
// It returns false when the snapshot was dropped as out of date.
func (c *Client) Apply(r *game.Replica, s *api.GameState) bool {
	if s == nil {
		return false
	}
	if c.seen && s.T <= c.last {
		snapshotsApplied.WithLabelValues("stale").Inc()
		return false
	}
	c.seen, c.last, c.lastAt = true, s.T, c.clock()

	r.Phase = game.Phase(s.State)
	r.Round = s.Round
	r.Scores = append(r.Scores[:0], s.Scores...)
	r.Countdown = s.Countdown

	syncPlayers(r, s.Players)
	syncBombs(r, s.Bombs)
	syncExplosions(r, s.Explosions)
	syncPowerUps(r, s.PowerUps)
	applyGrid(r, s.Grid)

	snapshotsApplied.WithLabelValues("applied").Inc()
	return true
}

// Smooth eases avatars towards their targets, independent of the frame rate.
func (c *Client) Smooth(r *game.Replica, dt float64) {
	alpha := 1 - math.Exp(-c.rate*dt)
	for _, a := range r.Players {
		if a.Alive {
			a.Ease(alpha)
		} else {
			a.Animate(dt)
		}
	}
}

func syncPlayers(r *game.Replica, players []api.PlayerState) {
	for _, p := range players {
		a, created := r.Avatar(p.Id)
		a.Gx, a.Gz, a.Tx, a.Tz = p.Gx, p.Gz, p.Tx, p.Tz
		a.Moving = p.Moving
		a.BombRange, a.MaxBombs, a.ActiveBombs = p.BombRange, p.MaxBombs, p.ActiveBombs
		a.Speed = p.Speed
		a.Target = [3]float64{p.Px, p.Py, p.Pz}
		a.TargetRy = p.Ry

		switch {
		case created:
			a.Alive = p.Alive
			a.Visible = p.Visible
			a.DeathTimer = p.DeathTimer
			a.Snap()
		case a.Alive && !p.Alive:
			a.Die()
		case !a.Alive && p.Alive:
			a.Revive()
		}
		if p.Alive {
			a.Visible = p.Visible
		} else if !p.Visible {
			a.Visible = false
		}
	}
}

func cellOf(x, z int) game.Cell { return game.Cell{X: x, Z: z} }

func syncBombs(r *game.Replica, bombs []api.BombState) {
	want := make(map[game.Cell]api.BombState, len(bombs))
	for _, b := range bombs {
		want[cellOf(b.Gx, b.Gz)] = b
	}
	for c, d := range r.Bombs {
		if _, ok := want[c]; !ok {
			r.Destroyed[d.Kind]++
			delete(r.Bombs, c)
		}
	}
	for c, b := range want {
		if d, ok := r.Bombs[c]; ok {
			d.Timer = b.Timer
			continue
		}
		r.Bombs[c] = &game.Decoration{Cell: c, Kind: "bomb", Range: b.Range, Owner: b.OwnerId, Timer: b.Timer}
	}
}

func syncExplosions(r *game.Replica, explosions []api.ExplosionState) {
	want := make(map[game.Cell]api.ExplosionState, len(explosions))
	for _, e := range explosions {
		// finished on the host, the local one fades by itself
		if e.Timer <= 0 || len(e.Cells) == 0 {
			continue
		}
		want[cellOf(e.Cells[0].X, e.Cells[0].Z)] = e
	}
	for c, d := range r.Explosions {
		if _, ok := want[c]; !ok {
			r.Destroyed[d.Kind]++
			delete(r.Explosions, c)
		}
	}
	for c, e := range want {
		if d, ok := r.Explosions[c]; ok {
			d.Timer = e.Timer
			continue
		}
		cells := make([]game.Cell, len(e.Cells))
		for i, ec := range e.Cells {
			cells[i] = cellOf(ec.X, ec.Z)
		}
		r.Explosions[c] = &game.Decoration{Cell: c, Kind: "explosion", Timer: e.Timer, Cells: cells}
	}
}

func syncPowerUps(r *game.Replica, powerUps []api.PowerUpState) {
	want := make(map[game.Cell]api.PowerUpState, len(powerUps))
	for _, pu := range powerUps {
		if !game.PowerUpType(pu.Type).Valid() {
			continue
		}
		want[cellOf(pu.Gx, pu.Gz)] = pu
	}
	for c, d := range r.PowerUps {
		if _, ok := want[c]; !ok {
			r.Destroyed[d.Kind]++
			delete(r.PowerUps, c)
		}
	}
	for c := range want {
		if _, ok := r.PowerUps[c]; !ok {
			r.PowerUps[c] = &game.Decoration{Cell: c, Kind: "powerup:" + want[c].Type}
		}
	}
}

func applyGrid(r *game.Replica, g *api.GridUpdate) {
	switch {
	case g == nil:
	case g.IsFull():
		r.SetGrid(game.GridFrom(g.Full))
	default:
		for _, c := range g.Delta {
			r.SetCell(cellOf(c.X, c.Z), c.V)
		}
	}
}
