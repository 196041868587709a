// Package pong is the physics and scoring of a single match. It does no I/O
// and keeps no clock; callers step it with an elapsed duration.
package pong

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrNotWaiting = errors.New("match already started")
	ErrNotPlaying = errors.New("match is not in play")
	ErrNotPaused  = errors.New("match is not paused")
	ErrFinished   = errors.New("match is finished")

	ErrUnknownCommand = errors.New("unknown paddle command")
)

type Config struct {
	MaxScore int
}

func DefaultConfig() Config {
	return Config{MaxScore: DefaultMaxScore}
}

type Simulation struct {
	cfg   Config
	rng   *rand.Rand
	state State
}

func New(cfg Config, rng *rand.Rand) *Simulation {
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = DefaultMaxScore
	}
	s := &Simulation{cfg: cfg, rng: rng}
	s.state = State{
		Left:   Paddle{Y: FieldHeight / 2, Direction: Stop},
		Right:  Paddle{Y: FieldHeight / 2, Direction: Stop},
		Ball:   Ball{X: FieldWidth / 2, Y: FieldHeight / 2},
		Status: StatusWaiting,
	}
	return s
}

func (s *Simulation) State() State { return s.state }

func (s *Simulation) Status() Status { return s.state.Status }

// Start serves the first ball toward a random side.
func (s *Simulation) Start() error {
	if s.state.Status != StatusWaiting {
		return ErrNotWaiting
	}
	s.state.Status = StatusPlaying
	toward := Left
	if s.rng.IntN(2) == 1 {
		toward = Right
	}
	s.serve(toward)
	return nil
}

func (s *Simulation) Pause() error {
	if s.state.Status != StatusPlaying {
		return ErrNotPlaying
	}
	s.state.Status = StatusPaused
	s.state.Left.Direction = Stop
	s.state.Right.Direction = Stop
	return nil
}

func (s *Simulation) Resume() error {
	if s.state.Status != StatusPaused {
		return ErrNotPaused
	}
	s.state.Status = StatusPlaying
	return nil
}

// Finish ends the match with winner regardless of score.
func (s *Simulation) Finish(winner Side) error {
	if s.state.Status == StatusFinished {
		return ErrFinished
	}
	s.state.Status = StatusFinished
	s.state.Winner = winner
	s.state.Ball.VX, s.state.Ball.VY = 0, 0
	return nil
}

// Cancel ends the match with no winner.
func (s *Simulation) Cancel() {
	s.state.Status = StatusFinished
	s.state.Winner = ""
	s.state.Ball.VX, s.state.Ball.VY = 0, 0
}

func (s *Simulation) SetDirection(side Side, cmd Command) error {
	if s.state.Status != StatusPlaying {
		return ErrNotPlaying
	}
	s.paddle(side).Direction = cmd
	return nil
}

// Step advances the match by dt. It is a no-op unless the match is playing.
func (s *Simulation) Step(dt time.Duration) {
	if s.state.Status != StatusPlaying {
		return
	}
	secs := dt.Seconds()
	s.state.Tick++

	movePaddle(&s.state.Left, secs)
	movePaddle(&s.state.Right, secs)

	b := &s.state.Ball
	prevX := b.X
	b.X += b.VX * secs
	b.Y += b.VY * secs

	switch {
	case b.Y-BallRadius < 0:
		b.Y = BallRadius
		b.VY = math.Abs(b.VY)
	case b.Y+BallRadius > FieldHeight:
		b.Y = FieldHeight - BallRadius
		b.VY = -math.Abs(b.VY)
	}

	leftFace := PaddleInset + PaddleWidth
	rightFace := FieldWidth - PaddleInset - PaddleWidth

	if b.VX < 0 && prevX-BallRadius >= leftFace && b.X-BallRadius <= leftFace && withinPaddle(s.state.Left, b.Y) {
		b.X = leftFace + BallRadius
		b.VX = math.Abs(b.VX)
		b.VY = clampSpin(b.VY + strikeOffset(s.state.Left, b.Y)*SpinSpeed)
	}
	if b.VX > 0 && prevX+BallRadius <= rightFace && b.X+BallRadius >= rightFace && withinPaddle(s.state.Right, b.Y) {
		b.X = rightFace - BallRadius
		b.VX = -math.Abs(b.VX)
		b.VY = clampSpin(b.VY + strikeOffset(s.state.Right, b.Y)*SpinSpeed)
	}

	switch {
	case b.X+BallRadius < 0:
		s.point(Right)
	case b.X-BallRadius > FieldWidth:
		s.point(Left)
	}
}

func (s *Simulation) point(scorer Side) {
	if scorer == Left {
		s.state.Score.Left++
	} else {
		s.state.Score.Right++
	}
	if s.state.Score.For(scorer) >= s.cfg.MaxScore {
		s.state.Ball = Ball{X: FieldWidth / 2, Y: FieldHeight / 2}
		s.state.Status = StatusFinished
		s.state.Winner = scorer
		return
	}
	s.serve(scorer.Opponent())
}

func (s *Simulation) serve(toward Side) {
	angle := (s.rng.Float64()*2 - 1) * ServeSpread
	dir := 1.0
	if toward == Left {
		dir = -1
	}
	s.state.Ball = Ball{
		X:  FieldWidth / 2,
		Y:  FieldHeight / 2,
		VX: dir * ServeSpeed * math.Cos(angle),
		VY: ServeSpeed * math.Sin(angle),
	}
}

func (s *Simulation) paddle(side Side) *Paddle {
	if side == Left {
		return &s.state.Left
	}
	return &s.state.Right
}

func movePaddle(p *Paddle, secs float64) {
	switch p.Direction {
	case Up:
		p.Y -= PaddleSpeed * secs
	case Down:
		p.Y += PaddleSpeed * secs
	}
	half := PaddleHeight / 2
	p.Y = math.Max(half, math.Min(FieldHeight-half, p.Y))
}

func withinPaddle(p Paddle, y float64) bool {
	return y >= p.Y-PaddleHeight/2 && y <= p.Y+PaddleHeight/2
}

func strikeOffset(p Paddle, y float64) float64 {
	off := (y - p.Y) / (PaddleHeight / 2)
	return math.Max(-1, math.Min(1, off))
}

func clampSpin(vy float64) float64 {
	return math.Max(-MaxVerticalSpeed, math.Min(MaxVerticalSpeed, vy))
}
