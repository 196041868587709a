package pong

import "math"

const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 12.0
	PaddleHeight = 100.0
	PaddleInset  = 24.0
	PaddleSpeed  = 420.0 // units/sec

	BallRadius = 8.0
	ServeSpeed = 360.0 // units/sec

	// Vertical velocity added per unit of strike offset (-1 top edge, +1 bottom edge).
	SpinSpeed = 240.0
	// Rallies stack spin; keep the ball from going near-vertical.
	MaxVerticalSpeed = 520.0

	DefaultMaxScore = 5
)

// ServeSpread is the half-angle of the random serve cone.
const ServeSpread = math.Pi / 4
