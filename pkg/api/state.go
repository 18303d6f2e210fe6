package api

// GameState is one timestamped snapshot of the host simulation.
type GameState struct {
	T          int64            `json:"t"`
	State      string           `json:"state"`
	Round      int              `json:"round"`
	Scores     []int            `json:"scores"`
	Countdown  float64          `json:"countdownTimer"`
	Players    []PlayerState    `json:"players"`
	Bombs      []BombState      `json:"bombs"`
	Explosions []ExplosionState `json:"explosions"`
	PowerUps   []PowerUpState   `json:"powerUps"`
	Grid       *GridUpdate      `json:"grid,omitempty"`
}

type PlayerState struct {
	Id          int     `json:"id"`
	Alive       bool    `json:"alive"`
	Gx          int     `json:"gx"`
	Gz          int     `json:"gz"`
	Tx          int     `json:"tx"`
	Tz          int     `json:"tz"`
	Px          float64 `json:"px"`
	Py          float64 `json:"py"`
	Pz          float64 `json:"pz"`
	Ry          float64 `json:"ry"`
	Moving      bool    `json:"moving"`
	BombRange   int     `json:"bombRange"`
	MaxBombs    int     `json:"maxBombs"`
	ActiveBombs int     `json:"activeBombs"`
	Speed       float64 `json:"speed"`
	DeathTimer  float64 `json:"deathTimer"`
	Visible     bool    `json:"visible"`
}

type BombState struct {
	Gx      int     `json:"gx"`
	Gz      int     `json:"gz"`
	Range   int     `json:"range"`
	OwnerId int     `json:"ownerId"`
	Timer   float64 `json:"timer"`
}

type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

type ExplosionState struct {
	Cells []Cell  `json:"cells"`
	Timer float64 `json:"timer"`
}

type PowerUpState struct {
	Gx   int    `json:"gx"`
	Gz   int    `json:"gz"`
	Type string `json:"type"`
}

type CellChange struct {
	X int `json:"x"`
	Z int `json:"z"`
	V int `json:"v"`
}

// GridUpdate carries either the whole grid or the cells changed since the last one.
type GridUpdate struct {
	Full  [][]int      `json:"full,omitempty"`
	Delta []CellChange `json:"delta,omitempty"`
}

func (g *GridUpdate) IsFull() bool { return g != nil && g.Full != nil }

type Keys struct {
	Up    bool `json:"UP"`
	Down  bool `json:"DOWN"`
	Left  bool `json:"LEFT"`
	Right bool `json:"RIGHT"`
	Bomb  bool `json:"BOMB"`
}

type PlayerInput struct {
	Keys     Keys     `json:"keys"`
	Pressed  []string `json:"pressed"`
	PlayerId int      `json:"playerId"`
}
