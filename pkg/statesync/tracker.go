package statesync

import (
	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/game"
)

// GridTracker remembers the last grid sent to clients
// and turns the next one into a full grid or a list of changed cells.
type GridTracker struct {
	threshold int
	keyframe  int

	prev  [][]int
	since int
}

// NewGridTracker makes a tracker that falls back to a full grid when more than
// threshold cells changed or every keyframe updates (0 disables keyframes).
func NewGridTracker(threshold, keyframe int) *GridTracker {
	return &GridTracker{threshold: threshold, keyframe: keyframe}
}

// Reset forgets the sent grid, the next update will be full.
func (t *GridTracker) Reset() { t.prev = nil }

// Next returns the update for the current grid, nil when nothing changed.
func (t *GridTracker) Next(g *game.Grid) *api.GridUpdate {
	if g == nil {
		return nil
	}
	raw := g.Raw()
	if t.prev == nil || len(t.prev) != len(raw) || (len(raw) > 0 && len(t.prev[0]) != len(raw[0])) {
		return t.full(raw)
	}
	if t.keyframe > 0 && t.since >= t.keyframe {
		return t.full(raw)
	}

	var changes []api.CellChange
	for z := range raw {
		for x := range raw[z] {
			if raw[z][x] != t.prev[z][x] {
				changes = append(changes, api.CellChange{X: x, Z: z, V: raw[z][x]})
			}
		}
	}
	if len(changes) > t.threshold {
		return t.full(raw)
	}
	t.since++
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		t.prev[c.Z][c.X] = c.V
	}
	gridSent.WithLabelValues("delta").Inc()
	return &api.GridUpdate{Delta: changes}
}

func (t *GridTracker) full(raw [][]int) *api.GridUpdate {
	t.prev = raw
	t.since = 0
	gridSent.WithLabelValues("full").Inc()
	out := make([][]int, len(raw))
	for z := range raw {
		out[z] = append([]int(nil), raw[z]...)
	}
	return &api.GridUpdate{Full: out}
}
