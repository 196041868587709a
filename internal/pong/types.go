package pong

type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

func (s Side) Opponent() Side {
	if s == Left {
		return Right
	}
	return Left
}

type Command string

const (
	Up   Command = "up"
	Down Command = "down"
	Stop Command = "stop"
)

func ParseCommand(s string) (Command, bool) {
	switch Command(s) {
	case Up, Down, Stop:
		return Command(s), true
	default:
		return "", false
	}
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

type Paddle struct {
	Y         float64 `json:"y"` // centre
	Direction Command `json:"direction"`
}

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

type Score struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

func (s Score) For(side Side) int {
	if side == Left {
		return s.Left
	}
	return s.Right
}

// State is a value copy of one match. Snapshots never alias the simulation.
type State struct {
	Left   Paddle `json:"left"`
	Right  Paddle `json:"right"`
	Ball   Ball   `json:"ball"`
	Score  Score  `json:"score"`
	Status Status `json:"status"`
	Winner Side   `json:"winner,omitempty"`
	Tick   uint64 `json:"tick"`
}
