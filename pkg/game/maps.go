package game

import (
	"errors"
	"fmt"
)

var ErrNoMap = errors.New("no such map")

// MapDef describes an arena layout:
//
//	# wall
//	+ destructible block
//	. floor
//	1-4 spawn of the player with that id (floor)
type MapDef struct {
	Name   string
	Layout []string
}

var Maps = []MapDef{
	{
		Name: "classic",
		Layout: []string{
			"###############",
			"#1.+++++++++.2#",
			"#.#+#+#+#+#+#.#",
			"#+++++.+.+++++#",
			"#+#+#+#+#+#+#+#",
			"#++.+++++++.++#",
			"#+#+#+#.#+#+#+#",
			"#++.+++++++.++#",
			"#+#+#+#+#+#+#+#",
			"#+++++.+.+++++#",
			"#.#+#+#+#+#+#.#",
			"#3.+++++++++.4#",
			"###############",
		},
	},
	{
		Name: "crossroads",
		Layout: []string{
			"#############",
			"#1.++...++.2#",
			"#.#+#+#+#+#.#",
			"#+++.....+++#",
			"#.#+#.#.#+#.#",
			"#..+.+.+.+..#",
			"#.#+#.#.#+#.#",
			"#+++.....+++#",
			"#.#+#+#+#+#.#",
			"#3.++...++.4#",
			"#############",
		},
	},
	{
		Name: "open field",
		Layout: []string{
			"###########",
			"#1..+.+..2#",
			"#.+.+.+.+.#",
			"#+.+...+.+#",
			"#.+.+.+.+.#",
			"#+.+...+.+#",
			"#.+.+.+.+.#",
			"#3..+.+..4#",
			"###########",
		},
	},
}

func MapByIndex(i int) (*MapDef, error) {
	if i < 0 || i >= len(Maps) {
		return nil, fmt.Errorf("%w: %v", ErrNoMap, i)
	}
	return &Maps[i], nil
}

func (m *MapDef) Cols() int {
	if len(m.Layout) == 0 {
		return 0
	}
	return len(m.Layout[0])
}

func (m *MapDef) Rows() int { return len(m.Layout) }

// Grid builds a fresh grid, spawn cells become floor.
func (m *MapDef) Grid() *Grid {
	g := NewGrid(m.Cols(), m.Rows())
	for z, row := range m.Layout {
		for x, c := range row {
			switch c {
			case '#':
				g.Set(x, z, Wall)
			case '+':
				g.Set(x, z, Block)
			default:
				g.Set(x, z, Empty)
			}
		}
	}
	return g
}

// Spawn returns the spawn cell of a player.
// Without a marker the player takes a corner next to the border.
func (m *MapDef) Spawn(id int) Cell {
	marker := rune('0' + id)
	for z, row := range m.Layout {
		for x, c := range row {
			if c == marker {
				return Cell{X: x, Z: z}
			}
		}
	}
	cols, rows := m.Cols(), m.Rows()
	switch id {
	case 2:
		return Cell{X: cols - 2, Z: 1}
	case 3:
		return Cell{X: 1, Z: rows - 2}
	case 4:
		return Cell{X: cols - 2, Z: rows - 2}
	}
	return Cell{X: 1, Z: 1}
}
