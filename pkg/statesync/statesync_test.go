package statesync

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/game"
	"github.com/blastzone/netplay/pkg/input"
)

func TestGridTracker(t *testing.T) {
	g := game.Maps[0].Grid()
	tr := NewGridTracker(20, 0)

	if u := tr.Next(g); !u.IsFull() {
		t.Fatalf("first update must be full")
	}
	if u := tr.Next(g); u != nil {
		t.Errorf("no changes should give no update, got %+v", u)
	}
	g.Set(3, 1, game.Empty)
	u := tr.Next(g)
	if u == nil || u.IsFull() || len(u.Delta) != 1 || u.Delta[0] != (api.CellChange{X: 3, Z: 1, V: game.Empty}) {
		t.Fatalf("bad delta %+v", u)
	}

	changed := 0
	for z := 0; z < g.Rows() && changed <= 20; z++ {
		for x := 0; x < g.Cols() && changed <= 20; x++ {
			if g.Get(x, z) == game.Block {
				g.Set(x, z, game.Empty)
				changed++
			}
		}
	}
	if u := tr.Next(g); !u.IsFull() {
		t.Errorf("%v changes must give a full grid", changed)
	}

	tr.Reset()
	if u := tr.Next(g); !u.IsFull() {
		t.Errorf("reset must give a full grid")
	}
}

func TestGridTrackerKeyframe(t *testing.T) {
	g := game.Maps[0].Grid()
	tr := NewGridTracker(20, 3)
	var kinds []bool
	for i := 0; i < 8; i++ {
		kinds = append(kinds, tr.Next(g).IsFull())
	}
	want := []bool{true, false, false, false, true, false, false, false}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("keyframes %v, want %v", kinds, want)
		}
	}
}

func TestDeltaIdempotent(t *testing.T) {
	r := game.NewReplica()
	r.Load(&game.Maps[0])
	delta := &api.GridUpdate{Delta: []api.CellChange{{X: 3, Z: 1, V: game.Empty}, {X: 4, Z: 1, V: game.Bomb}}}

	applyGrid(r, delta)
	once := r.Grid.Clone()
	blocks := len(r.Blocks)
	applyGrid(r, delta)
	if !r.Grid.Equal(once) || len(r.Blocks) != blocks {
		t.Errorf("second application changed the replica")
	}
}

func testSync() config.Sync {
	return config.Sync{BroadcastInterval: 50 * time.Millisecond, DeltaThreshold: 20, KeyframeEvery: 30, SmoothingRate: 15}
}

func TestHostCadence(t *testing.T) {
	w, _ := game.NewWorld(0, []int{1, 2}, 1)
	w.StartRound()
	h := NewHost(testSync())
	now := time.Unix(1000, 0)
	h.clock = func() time.Time { return now }

	var got []*api.GameState
	for i := 0; i < 9; i++ {
		if s, ok := h.Tick(0.02, w); ok {
			got = append(got, s)
		}
	}
	if len(got) != 3 {
		t.Fatalf("got %v snapshots, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].T <= got[i-1].T {
			t.Errorf("timestamps not increasing: %v after %v", got[i].T, got[i-1].T)
		}
	}
	if !got[0].Grid.IsFull() || got[1].Grid != nil {
		t.Errorf("grid should be full then absent")
	}
	h.ResetRound()
	if s := h.Snapshot(w); !s.Grid.IsFull() {
		t.Errorf("new round must resend the grid")
	}
}

func TestSerializeRounds(t *testing.T) {
	w, _ := game.NewWorld(0, []int{1, 2}, 1)
	w.StartRound()
	w.Players[0].X = 1.23456
	w.Countdown = 2.999
	s := Serialize(w, nil, 1)
	if s.Players[0].Px != 1.23 || s.Countdown != 3 {
		t.Errorf("px %v countdown %v", s.Players[0].Px, s.Countdown)
	}
	if s.State != "COUNTDOWN" || len(s.Scores) != 2 || s.Grid != nil {
		t.Errorf("bad snapshot %+v", s)
	}
}

// busyWorld runs a match with both players bombing.
func busyWorld(t *testing.T, seconds float64, each func(*game.World)) *game.World {
	t.Helper()
	w, err := game.NewWorld(0, []int{1, 2}, 3)
	if err != nil {
		t.Fatal(err)
	}
	w.StartRound()
	w.Phase = game.PhasePlaying
	p1, p2 := input.NewLocal(), input.NewLocal()
	src := map[int]input.Source{1: p1, 2: p2}
	steps := int(seconds / 0.05)
	for i := 0; i < steps; i++ {
		switch i % 40 {
		case 0:
			p1.Press(input.Bomb)
			p2.Press(input.Bomb)
		case 2:
			p1.Release(input.Bomb)
			p2.Release(input.Bomb)
			p1.Press(input.Down)
			p2.Press(input.Left)
		case 20:
			p1.Release(input.Down)
			p2.Release(input.Left)
		}
		w.Update(0.05, src)
		if each != nil {
			each(w)
		}
	}
	return w
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := busyWorld(t, 2, nil)
	if len(w.Bombs) == 0 {
		t.Fatalf("no bombs to sync")
	}
	h := NewHost(testSync())
	data, err := api.Encode(api.State, api.HostId, h.Snapshot(w))
	if err != nil {
		t.Fatal(err)
	}
	in, err := api.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	s, err := api.Unwrap[api.GameState](in.Payload)
	if err != nil {
		t.Fatal(err)
	}

	r := game.NewReplica()
	c := NewClient(testSync())
	if !c.Apply(r, s) {
		t.Fatalf("snapshot dropped")
	}
	if !r.Grid.Equal(w.Grid) {
		t.Errorf("grids differ")
	}
	if len(r.Bombs) != len(w.Bombs) {
		t.Errorf("bombs %v, want %v", len(r.Bombs), len(w.Bombs))
	}
	for _, b := range w.Bombs {
		d, ok := r.Bombs[b.Cell]
		if !ok || d.Owner != b.OwnerId || math.Abs(d.Timer-b.Timer) > 0.01 {
			t.Errorf("bomb at %v not mirrored", b.Cell)
		}
	}
	for _, p := range w.Players {
		a := r.Players[p.Id]
		if a == nil || a.Alive != p.Alive || a.Tx != p.Tx || math.Abs(a.Pos[0]-p.X) > 0.01 {
			t.Errorf("player %v not mirrored: %+v", p.Id, a)
		}
	}
	if r.Phase != w.Phase || r.Round != w.Round {
		t.Errorf("phase %v round %v", r.Phase, r.Round)
	}
}

type view struct {
	phase      game.Phase
	grid       *game.Grid
	bombs      map[game.Cell]float64
	explosions map[game.Cell]float64
	powerUps   map[game.Cell]string
	targets    map[int][3]float64
}

func viewOf(r *game.Replica) view {
	v := view{
		phase:      r.Phase,
		grid:       r.Grid,
		bombs:      map[game.Cell]float64{},
		explosions: map[game.Cell]float64{},
		powerUps:   map[game.Cell]string{},
		targets:    map[int][3]float64{},
	}
	for c, d := range r.Bombs {
		v.bombs[c] = d.Timer
	}
	for c, d := range r.Explosions {
		v.explosions[c] = d.Timer
	}
	for c, d := range r.PowerUps {
		v.powerUps[c] = d.Kind
	}
	for id, a := range r.Players {
		v.targets[id] = a.Target
	}
	return v
}

func (v view) equal(o view) bool {
	if v.phase != o.phase || !v.grid.Equal(o.grid) || len(v.bombs) != len(o.bombs) ||
		len(v.explosions) != len(o.explosions) || len(v.powerUps) != len(o.powerUps) || len(v.targets) != len(o.targets) {
		return false
	}
	for c, x := range v.bombs {
		if o.bombs[c] != x {
			return false
		}
	}
	for c, x := range v.explosions {
		if o.explosions[c] != x {
			return false
		}
	}
	for c, x := range v.powerUps {
		if o.powerUps[c] != x {
			return false
		}
	}
	for id, x := range v.targets {
		if o.targets[id] != x {
			return false
		}
	}
	return true
}

func TestShuffledDelivery(t *testing.T) {
	var snaps []*api.GameState
	ts := int64(0)
	busyWorld(t, 6, func(w *game.World) {
		ts += 50
		s := Serialize(w, &api.GridUpdate{Full: w.Grid.Raw()}, ts)
		snaps = append(snaps, &s)
	})

	ordered := game.NewReplica()
	oc := NewClient(testSync())
	for _, s := range snaps {
		oc.Apply(ordered, s)
	}

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*api.GameState(nil), snaps...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		r := game.NewReplica()
		c := NewClient(testSync())
		for _, s := range shuffled {
			c.Apply(r, s)
		}
		if c.LastTimestamp() != oc.LastTimestamp() {
			t.Fatalf("last timestamp %v, want %v", c.LastTimestamp(), oc.LastTimestamp())
		}
		if !viewOf(r).equal(viewOf(ordered)) {
			t.Fatalf("shuffle %v ends in a different replica", i)
		}
	}
}

func TestOlderSnapshotDropped(t *testing.T) {
	r := game.NewReplica()
	c := NewClient(testSync())
	newer := &api.GameState{T: 105, State: "PLAYING", Round: 2}
	older := &api.GameState{T: 100, State: "COUNTDOWN", Round: 1}
	if !c.Apply(r, newer) {
		t.Fatalf("first snapshot dropped")
	}
	if c.Apply(r, older) {
		t.Errorf("older snapshot applied")
	}
	if c.Apply(r, &api.GameState{T: 105}) {
		t.Errorf("same timestamp applied twice")
	}
	if r.Phase != game.PhasePlaying || r.Round != 2 || c.LastTimestamp() != 105 {
		t.Errorf("replica moved back to %v round %v", r.Phase, r.Round)
	}
}

func TestReconcile(t *testing.T) {
	r := game.NewReplica()
	c := NewClient(testSync())
	c.Apply(r, &api.GameState{
		T:     1,
		Bombs: []api.BombState{{Gx: 1, Gz: 1, Timer: 2}, {Gx: 3, Gz: 3, Timer: 1}},
		Explosions: []api.ExplosionState{
			{Cells: []api.Cell{{X: 5, Z: 5}, {X: 5, Z: 6}}, Timer: 0.4},
			{Cells: []api.Cell{{X: 7, Z: 7}}, Timer: 0},
		},
		PowerUps: []api.PowerUpState{{Gx: 2, Gz: 2, Type: "extra_bomb"}, {Gx: 4, Gz: 4, Type: "jetpack"}},
	})
	if len(r.Bombs) != 2 || len(r.Explosions) != 1 || len(r.PowerUps) != 1 {
		t.Fatalf("bombs %v explosions %v power-ups %v", len(r.Bombs), len(r.Explosions), len(r.PowerUps))
	}
	kept := r.Bombs[game.Cell{X: 1, Z: 1}]

	c.Apply(r, &api.GameState{
		T:          2,
		Bombs:      []api.BombState{{Gx: 1, Gz: 1, Timer: 1.5, Range: 9}},
		Explosions: []api.ExplosionState{{Cells: []api.Cell{{X: 5, Z: 5}, {X: 5, Z: 6}}, Timer: 0.2}},
	})
	b := r.Bombs[game.Cell{X: 1, Z: 1}]
	if b != kept || b.Timer != 1.5 || b.Range != 0 {
		t.Errorf("existing bomb must only get its timer: %+v", b)
	}
	if len(r.Bombs) != 1 || len(r.PowerUps) != 0 {
		t.Errorf("absent decorations survived")
	}
	if e := r.Explosions[game.Cell{X: 5, Z: 5}]; e == nil || e.Timer != 0.2 {
		t.Errorf("explosion not updated: %+v", e)
	}
	if r.Destroyed["bomb"] != 1 || r.Destroyed["powerup:extra_bomb"] != 1 {
		t.Errorf("destroyed %v", r.Destroyed)
	}
}

func TestPlayerTransitions(t *testing.T) {
	r := game.NewReplica()
	c := NewClient(testSync())
	alive := api.PlayerState{Id: 2, Alive: true, Visible: true, Px: 3, Pz: 1}
	c.Apply(r, &api.GameState{T: 1, Players: []api.PlayerState{alive}})
	a := r.Players[2]
	if a.Pos != [3]float64{3, 0, 1} {
		t.Fatalf("first sighting must snap, pos %v", a.Pos)
	}

	moved := alive
	moved.Px = 4
	c.Apply(r, &api.GameState{T: 2, Players: []api.PlayerState{moved}})
	if a.Pos[0] != 3 || a.Target[0] != 4 {
		t.Errorf("update must not snap: pos %v target %v", a.Pos, a.Target)
	}
	c.Smooth(r, 0.1)
	if a.Pos[0] <= 3 || a.Pos[0] >= 4 {
		t.Errorf("smoothing went to %v", a.Pos[0])
	}

	dead := moved
	dead.Alive = false
	c.Apply(r, &api.GameState{T: 3, Players: []api.PlayerState{dead}})
	if a.Alive || a.DeathTimer != game.DeathTime {
		t.Errorf("death animation not started")
	}
	c.Smooth(r, 1)
	if a.Visible {
		t.Errorf("finished death animation must hide the avatar")
	}

	respawn := alive
	respawn.Px = 13
	c.Apply(r, &api.GameState{T: 4, Players: []api.PlayerState{respawn}})
	if !a.Alive || !a.Visible || a.Scale != 1 || a.Pos[0] != 13 {
		t.Errorf("respawn must reset and snap: %+v", a)
	}
}

func TestSmoothingAlpha(t *testing.T) {
	r := game.NewReplica()
	c := NewClient(testSync())
	a, _ := r.Avatar(1)
	a.Target = [3]float64{1, 0, 0}
	c.Smooth(r, 0)
	if a.Pos[0] != 0 {
		t.Errorf("zero dt moved the avatar")
	}
	// two half steps equal one full step
	b, _ := r.Avatar(2)
	b.Target = a.Target
	c.Smooth(r, 0.05)
	c.Smooth(r, 0.05)
	one := game.NewReplica()
	x, _ := one.Avatar(1)
	x.Target = a.Target
	c.Smooth(one, 0.1)
	if math.Abs(x.Pos[0]-a.Pos[0]) > 1e-9 {
		t.Errorf("smoothing depends on frame rate: %v vs %v", x.Pos[0], a.Pos[0])
	}
}

func TestStaleness(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClient(testSync())
	c.clock = func() time.Time { return now }
	if c.Stale(now.Add(time.Hour), time.Second) || c.Since(now) != 0 {
		t.Errorf("stale before any snapshot")
	}
	c.Apply(game.NewReplica(), &api.GameState{T: 7})
	if c.Stale(now.Add(time.Second), 2*time.Second) {
		t.Errorf("fresh snapshot is stale")
	}
	if !c.Stale(now.Add(3*time.Second), 2*time.Second) {
		t.Errorf("old snapshot is not stale")
	}
	c.Reset()
	if c.LastTimestamp() != 0 || !c.Apply(game.NewReplica(), &api.GameState{T: 1}) {
		t.Errorf("reset did not clear the gate")
	}
}
