// Package statesync moves the host simulation to clients.
//
// The host samples the world at a fixed cadence into timestamped snapshots,
// clients keep only the newest one and reconcile their replica with it.
package statesync

import (
	"math"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/game"
)

// Host produces snapshots of the authoritative world.
type Host struct {
	interval float64
	acc      float64
	last     int64
	tracker  *GridTracker
	clock    func() time.Time
}

func NewHost(conf config.Sync) *Host {
	interval := conf.BroadcastInterval.Seconds()
	if interval <= 0 {
		interval = 1.0 / 15
	}
	return &Host{
		interval: interval,
		tracker:  NewGridTracker(conf.DeltaThreshold, conf.KeyframeEvery),
		clock:    time.Now,
	}
}

// ResetRound makes the next snapshot carry the full grid.
func (h *Host) ResetRound() { h.tracker.Reset() }

// Tick accumulates dt seconds and returns a snapshot when the interval is due.
func (h *Host) Tick(dt float64, w *game.World) (*api.GameState, bool) {
	h.acc += dt
	if h.acc < h.interval {
		return nil, false
	}
	h.acc = 0
	return h.Snapshot(w), true
}

// Snapshot samples the world now, regardless of the cadence.
func (h *Host) Snapshot(w *game.World) *api.GameState {
	t := h.clock().UnixMilli()
	if t <= h.last {
		t = h.last + 1
	}
	h.last = t
	s := Serialize(w, h.tracker.Next(w.Grid), t)
	snapshotsSent.Inc()
	return &s
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Serialize turns the world into a snapshot.
func Serialize(w *game.World, grid *api.GridUpdate, t int64) api.GameState {
	s := api.GameState{
		T:          t,
		State:      string(w.Phase),
		Round:      w.Round,
		Scores:     append([]int{}, w.Scores...),
		Countdown:  round2(w.Countdown),
		Players:    make([]api.PlayerState, 0, len(w.Players)),
		Bombs:      make([]api.BombState, 0, len(w.Bombs)),
		Explosions: make([]api.ExplosionState, 0, len(w.Explosions)),
		PowerUps:   make([]api.PowerUpState, 0, len(w.PowerUps)),
		Grid:       grid,
	}
	for _, p := range w.Players {
		s.Players = append(s.Players, api.PlayerState{
			Id:          p.Id,
			Alive:       p.Alive,
			Gx:          p.Gx,
			Gz:          p.Gz,
			Tx:          p.Tx,
			Tz:          p.Tz,
			Px:          round2(p.X),
			Py:          round2(p.Y),
			Pz:          round2(p.Z),
			Ry:          round2(p.Ry),
			Moving:      p.Moving,
			BombRange:   p.BombRange,
			MaxBombs:    p.MaxBombs,
			ActiveBombs: p.ActiveBombs,
			Speed:       p.Speed,
			DeathTimer:  p.DeathTimer,
			Visible:     p.Visible,
		})
	}
	for _, b := range w.Bombs {
		s.Bombs = append(s.Bombs, api.BombState{
			Gx: b.X, Gz: b.Z, Range: b.Range, OwnerId: b.OwnerId, Timer: round2(b.Timer),
		})
	}
	for _, e := range w.Explosions {
		cells := make([]api.Cell, len(e.Cells))
		for i, c := range e.Cells {
			cells[i] = api.Cell{X: c.X, Z: c.Z}
		}
		s.Explosions = append(s.Explosions, api.ExplosionState{Cells: cells, Timer: round2(e.Timer)})
	}
	for _, pu := range w.PowerUps {
		s.PowerUps = append(s.PowerUps, api.PowerUpState{Gx: pu.X, Gz: pu.Z, Type: string(pu.Type)})
	}
	return s
}
