// Package game holds the arena simulation shared by both roles of a match:
// the authoritative World run by the host and the Replica rendered by clients.
package game

type Cell struct {
	X, Z int
}

// Cell values on the grid, the numbers travel as they are.
const (
	Empty = 0
	Wall  = 1
	Block = 2
	Bomb  = 3
)

// Grid is a row-major (z, x) field of cell values.
type Grid struct {
	cols, rows int
	cells      [][]int
}

func NewGrid(cols, rows int) *Grid {
	cells := make([][]int, rows)
	for z := range cells {
		cells[z] = make([]int, cols)
	}
	return &Grid{cols: cols, rows: rows, cells: cells}
}

// GridFrom copies raw rows into a new grid.
// Ragged rows are padded with walls.
func GridFrom(rows [][]int) *Grid {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	g := NewGrid(cols, len(rows))
	for z, r := range rows {
		for x := 0; x < cols; x++ {
			if x < len(r) {
				g.cells[z][x] = r[x]
			} else {
				g.cells[z][x] = Wall
			}
		}
	}
	return g
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

func (g *Grid) In(x, z int) bool { return x >= 0 && x < g.cols && z >= 0 && z < g.rows }

// Get returns Wall for out of bounds cells.
func (g *Grid) Get(x, z int) int {
	if !g.In(x, z) {
		return Wall
	}
	return g.cells[z][x]
}

func (g *Grid) Set(x, z, v int) {
	if g.In(x, z) {
		g.cells[z][x] = v
	}
}

func (g *Grid) Walkable(x, z int) bool { return g.Get(x, z) == Empty }

// Raw returns a deep copy of the cells.
func (g *Grid) Raw() [][]int {
	out := make([][]int, g.rows)
	for z := range g.cells {
		out[z] = append([]int(nil), g.cells[z]...)
	}
	return out
}

func (g *Grid) Clone() *Grid { return GridFrom(g.cells) }

// Equal compares dimensions and every cell.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.cols != o.cols || g.rows != o.rows {
		return false
	}
	for z := range g.cells {
		for x := range g.cells[z] {
			if g.cells[z][x] != o.cells[z][x] {
				return false
			}
		}
	}
	return true
}
