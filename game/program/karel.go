package program

import (
	"time"

	"github.com/wricardo/karel/game/engine"
)

// Karel is the basic instruction set: the four primitives and the sensors.
// A failing instruction aborts the program; the error is reported by the
// Program that runs it, so user code never handles errors itself.
type Karel interface {
	Move()
	TurnLeft()
	PickBeeper()
	PutBeeper()

	FrontIsClear() bool
	FrontIsBlocked() bool
	LeftIsClear() bool
	LeftIsBlocked() bool
	RightIsClear() bool
	RightIsBlocked() bool
	BeepersPresent() bool
	NoBeepersPresent() bool
	BeepersInBag() bool
	NoBeepersInBag() bool
	FacingNorth() bool
	FacingEast() bool
	FacingSouth() bool
	FacingWest() bool
	NotFacingNorth() bool
	NotFacingEast() bool
	NotFacingSouth() bool
	NotFacingWest() bool
}

// SuperKarel extends Karel with single-step turns, paint, randomness and
// pacing.
type SuperKarel interface {
	Karel

	TurnRight()
	TurnAround()
	PaintCorner(c engine.Color)
	CornerColorIs(c engine.Color) bool
	Random(p float64) bool
	// Flip is Random with even odds.
	Flip() bool
	Pause(d time.Duration)
}
