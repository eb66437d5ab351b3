package engine

import (
	"math/rand/v2"
	"time"
)

// Robot is a single Karel. It is created unplaced and must be added to a
// World before any instruction or sensor can be used.
//
// Every primitive validates against the world first and leaves all state
// untouched when it fails. A successful state change is committed before the
// world's monitor is traced.
type Robot struct {
	x, y    int
	dir     Direction
	beepers int
	world   *World

	random func() float64
	pauser func(time.Duration)
}

// NewRobot returns an unplaced robot at (1, 1) facing East with an empty bag.
func NewRobot() *Robot {
	return &Robot{x: 1, y: 1, dir: East}
}

// NewRobotAt returns an unplaced robot with the given position, direction and
// bag count.
func NewRobotAt(x, y int, dir Direction, beepers int) *Robot {
	return &Robot{x: x, y: y, dir: dir, beepers: beepers}
}

// Location returns the robot's corner.
func (r *Robot) Location() Point { return Point{X: r.x, Y: r.y} }

// Direction returns the way the robot is facing.
func (r *Robot) Direction() Direction { return r.dir }

// Bag returns the bag count, possibly Infinite.
func (r *Robot) Bag() int { return r.beepers }

// World returns the world the robot lives in, or nil.
func (r *Robot) World() *World { return r.world }

// SetLocation moves the robot to (x, y) without tracing. When the robot lives
// in a world the corner must be in bounds and free; moving onto its own
// corner is a no-op.
func (r *Robot) SetLocation(x, y int) error {
	if r.world != nil {
		if r.world.OutOfBounds(x, y) {
			return newError(KindOutOfBounds, "setLocation", "Out of bounds")
		}
		occupant := r.world.RobotAt(x, y)
		if occupant == r {
			return nil
		}
		if occupant != nil {
			return newError(KindOccupied, "setLocation", "Square is already occupied")
		}
	}
	r.x, r.y = x, y
	return nil
}

// SetDirection turns the robot to d without tracing.
func (r *Robot) SetDirection(d Direction) {
	r.dir = d
}

// SetBag sets the bag count. Negative counts are stored as zero.
func (r *Robot) SetBag(n int) {
	if n < 0 {
		n = 0
	}
	r.beepers = n
}

// SetRandom replaces the uniform [0, 1) source used by Random. Nil restores
// the default generator.
func (r *Robot) SetRandom(src func() float64) {
	r.random = src
}

// SetPauser replaces the delay hook used by Pause. Nil makes Pause a no-op
// apart from its trace.
func (r *Robot) SetPauser(p func(time.Duration)) {
	r.pauser = p
}

func (r *Robot) checkWorld(op string) error {
	if r.world == nil {
		return newError(KindNotInWorld, op, "Karel is not living in a world")
	}
	return nil
}

// Move advances one corner in the facing direction.
func (r *Robot) Move() error {
	if err := r.checkWorld("move"); err != nil {
		return err
	}
	if r.world.CheckWall(r.x, r.y, r.dir) {
		return newError(KindBlocked, "move", "Karel is blocked")
	}
	nx, ny := AdjacentCorner(r.x, r.y, r.dir)
	if err := r.SetLocation(nx, ny); err != nil {
		return err
	}
	r.world.trace()
	return nil
}

// TurnLeft rotates 90 degrees counterclockwise.
func (r *Robot) TurnLeft() error {
	return r.turn("turnLeft", Left(r.dir))
}

// TurnRight rotates 90 degrees clockwise as a single instruction.
func (r *Robot) TurnRight() error {
	return r.turn("turnRight", Right(r.dir))
}

// TurnAround rotates 180 degrees as a single instruction.
func (r *Robot) TurnAround() error {
	return r.turn("turnAround", Opposite(r.dir))
}

func (r *Robot) turn(op string, d Direction) error {
	if err := r.checkWorld(op); err != nil {
		return err
	}
	r.dir = d
	r.world.trace()
	return nil
}

// PickBeeper moves one beeper from the corner into the bag.
func (r *Robot) PickBeeper() error {
	if err := r.checkWorld("pickBeeper"); err != nil {
		return err
	}
	nb := r.world.BeepersOnCorner(r.x, r.y)
	if nb < 1 {
		return newError(KindNoBeeperHere, "pickBeeper", "No beepers on this corner")
	}
	r.world.corners[r.world.index(r.x, r.y)].beepers = AdjustBeepers(nb, -1)
	r.beepers = AdjustBeepers(r.beepers, 1)
	r.world.trace()
	return nil
}

// PutBeeper moves one beeper from the bag onto the corner.
func (r *Robot) PutBeeper() error {
	if err := r.checkWorld("putBeeper"); err != nil {
		return err
	}
	if r.beepers < 1 {
		return newError(KindBagEmpty, "putBeeper", "No beepers in bag")
	}
	i := r.world.index(r.x, r.y)
	r.world.corners[i].beepers = AdjustBeepers(r.world.corners[i].beepers, 1)
	r.beepers = AdjustBeepers(r.beepers, -1)
	r.world.trace()
	return nil
}

// PaintCorner paints the robot's corner. NoColor clears it.
func (r *Robot) PaintCorner(c Color) error {
	if err := r.checkWorld("paintCorner"); err != nil {
		return err
	}
	r.world.corners[r.world.index(r.x, r.y)].color = c
	r.world.trace()
	return nil
}

// CornerColorIs reports whether the robot's corner has paint c. NoColor
// matches an unpainted corner.
func (r *Robot) CornerColorIs(c Color) (bool, error) {
	if err := r.checkWorld("cornerColorIs"); err != nil {
		return false, err
	}
	return r.world.CornerColor(r.x, r.y) == c, nil
}

// DefaultChance is the probability Random uses when a program gives none.
const DefaultChance = 0.5

// Random returns true with probability p.
func (r *Robot) Random(p float64) (bool, error) {
	if err := r.checkWorld("random"); err != nil {
		return false, err
	}
	src := r.random
	if src == nil {
		src = rand.Float64
	}
	return src() < p, nil
}

// Pause traces and then waits d through the installed pauser.
func (r *Robot) Pause(d time.Duration) error {
	if err := r.checkWorld("pause"); err != nil {
		return err
	}
	r.world.trace()
	if r.pauser != nil && d > 0 {
		r.pauser(d)
	}
	return nil
}

// sense evaluates a sensor after the placement check.
func (r *Robot) sense(op string, f func() bool) (bool, error) {
	if err := r.checkWorld(op); err != nil {
		return false, err
	}
	return f(), nil
}

// FrontIsClear reports whether no wall or border is ahead.
func (r *Robot) FrontIsClear() (bool, error) {
	return r.sense("frontIsClear", func() bool { return !r.world.CheckWall(r.x, r.y, r.dir) })
}

// FrontIsBlocked reports whether a wall or the border is ahead.
func (r *Robot) FrontIsBlocked() (bool, error) {
	return r.sense("frontIsBlocked", func() bool { return r.world.CheckWall(r.x, r.y, r.dir) })
}

// LeftIsClear reports whether the edge to the robot's left is open.
func (r *Robot) LeftIsClear() (bool, error) {
	return r.sense("leftIsClear", func() bool { return !r.world.CheckWall(r.x, r.y, Left(r.dir)) })
}

// LeftIsBlocked reports whether the edge to the robot's left is closed.
func (r *Robot) LeftIsBlocked() (bool, error) {
	return r.sense("leftIsBlocked", func() bool { return r.world.CheckWall(r.x, r.y, Left(r.dir)) })
}

// RightIsClear reports whether the edge to the robot's right is open.
func (r *Robot) RightIsClear() (bool, error) {
	return r.sense("rightIsClear", func() bool { return !r.world.CheckWall(r.x, r.y, Right(r.dir)) })
}

// RightIsBlocked reports whether the edge to the robot's right is closed.
func (r *Robot) RightIsBlocked() (bool, error) {
	return r.sense("rightIsBlocked", func() bool { return r.world.CheckWall(r.x, r.y, Right(r.dir)) })
}

// BeepersPresent reports whether the current corner holds a beeper.
func (r *Robot) BeepersPresent() (bool, error) {
	return r.sense("beepersPresent", func() bool { return r.world.BeepersOnCorner(r.x, r.y) > 0 })
}

// NoBeepersPresent reports whether the current corner is empty.
func (r *Robot) NoBeepersPresent() (bool, error) {
	return r.sense("noBeepersPresent", func() bool { return r.world.BeepersOnCorner(r.x, r.y) == 0 })
}

// BeepersInBag reports whether the bag holds a beeper. An infinite bag
// always does.
func (r *Robot) BeepersInBag() (bool, error) {
	return r.sense("beepersInBag", func() bool { return r.beepers > 0 })
}

// NoBeepersInBag reports whether the bag is empty.
func (r *Robot) NoBeepersInBag() (bool, error) {
	return r.sense("noBeepersInBag", func() bool { return r.beepers == 0 })
}

// FacingNorth reports whether the robot faces north.
func (r *Robot) FacingNorth() (bool, error) {
	return r.sense("facingNorth", func() bool { return r.dir == North })
}

// FacingEast reports whether the robot faces east.
func (r *Robot) FacingEast() (bool, error) {
	return r.sense("facingEast", func() bool { return r.dir == East })
}

// FacingSouth reports whether the robot faces south.
func (r *Robot) FacingSouth() (bool, error) {
	return r.sense("facingSouth", func() bool { return r.dir == South })
}

// FacingWest reports whether the robot faces west.
func (r *Robot) FacingWest() (bool, error) {
	return r.sense("facingWest", func() bool { return r.dir == West })
}

// NotFacingNorth reports whether the robot faces any way but north.
func (r *Robot) NotFacingNorth() (bool, error) {
	return r.sense("notFacingNorth", func() bool { return r.dir != North })
}

// NotFacingEast reports whether the robot faces any way but east.
func (r *Robot) NotFacingEast() (bool, error) {
	return r.sense("notFacingEast", func() bool { return r.dir != East })
}

// NotFacingSouth reports whether the robot faces any way but south.
func (r *Robot) NotFacingSouth() (bool, error) {
	return r.sense("notFacingSouth", func() bool { return r.dir != South })
}

// NotFacingWest reports whether the robot faces any way but west.
func (r *Robot) NotFacingWest() (bool, error) {
	return r.sense("notFacingWest", func() bool { return r.dir != West })
}
