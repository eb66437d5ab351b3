package program

import "github.com/wricardo/karel/game/engine"

// Tester drops a beeper on every corner until it reaches a wall.
var Tester = New("tester", func(k Karel) {
	for k.FrontIsClear() {
		k.PutBeeper()
		k.Move()
	}
}).WithWorld("test").WithDescription("Lay a line of beepers up to the first wall")

// turnRight and turnAround build the extended turns from TurnLeft the way a
// basic Karel has to.
func turnRight(k Karel) {
	k.TurnLeft()
	k.TurnLeft()
	k.TurnLeft()
}

func turnAround(k Karel) {
	k.TurnLeft()
	k.TurnLeft()
}

func moveN(k Karel, n int) {
	for i := 0; i < n; i++ {
		k.Move()
	}
}

// Better walks a fixed path using derived turns.
var Better = New("better", func(k Karel) {
	moveN(k, 5)
	turnAround(k)
	moveN(k, 3)
	turnRight(k)
	moveN(k, 5)
}).WithWorld("test").WithDescription("Walk a fixed path with turnRight and turnAround built from turnLeft")

// Maze follows the right-hand wall until it finds a beeper.
var Maze = NewSuper("maze", func(k SuperKarel) {
	for k.NoBeepersPresent() {
		k.TurnRight()
		for k.FrontIsBlocked() {
			k.TurnLeft()
		}
		k.Move()
	}
}).WithWorld("maze").WithDescription("Follow the right-hand wall until a beeper is found")

func face(k Karel, facing func() bool) {
	for !facing() {
		k.TurnLeft()
	}
}

func moveAndScoop(k Karel) {
	k.Move()
	for k.BeepersPresent() {
		k.PickBeeper()
	}
}

func walkToWall(k Karel) {
	for k.FrontIsClear() {
		k.Move()
	}
}

// Vacuum sweeps the world row by row, collecting every beeper, then piles
// them next to the south-west corner.
var Vacuum = New("vacuum", func(k Karel) {
	face(k, k.FacingSouth)
	walkToWall(k)
	face(k, k.FacingWest)
	walkToWall(k)
	for {
		face(k, k.FacingEast)
		for k.FrontIsClear() {
			moveAndScoop(k)
		}
		face(k, k.FacingNorth)
		if k.FrontIsBlocked() {
			break
		}
		moveAndScoop(k)
		face(k, k.FacingWest)
		for k.FrontIsClear() {
			moveAndScoop(k)
		}
		face(k, k.FacingNorth)
		if k.FrontIsBlocked() {
			break
		}
		moveAndScoop(k)
	}
	face(k, k.FacingSouth)
	walkToWall(k)
	face(k, k.FacingWest)
	walkToWall(k)
	for k.BeepersInBag() {
		k.PutBeeper()
	}
	face(k, k.FacingEast)
	k.Move()
}).WithWorld("vacuum").WithDescription("Collect every beeper and pile them in the corner")

// Painter checkerboards the bottom row with SuperKarel paint.
var Painter = NewSuper("painter", func(k SuperKarel) {
	paint := true
	for {
		if paint {
			k.PaintCorner(engine.Red)
		}
		if k.FrontIsBlocked() {
			break
		}
		k.Move()
		paint = !paint
	}
	k.TurnAround()
}).WithDescription("Paint every other corner of the first street red")

// Samples returns the built-in demo programs.
func Samples() []Program {
	return []Program{Tester, Better, Maze, Vacuum, Painter}
}
