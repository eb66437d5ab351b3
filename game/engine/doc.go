// Package engine implements the Karel the Robot world and robot model.
//
// The engine package covers:
//   - Direction arithmetic and corner geometry
//   - The World grid: corners with beepers and paint, symmetric walls, robots
//   - The Robot instruction set, sensors and legality checks
//   - The line-oriented world file format (Load, Save)
//   - Monitor notifications fired after every committed instruction
//
// Core Types:
//
// World owns the grid and the robots living on it. Robot is a single Karel;
// its primitives return an *Error whose Kind identifies the violation
// (Blocked, BagEmpty, ...). Monitor is the observer interface a World calls
// after each state change and on editing events.
//
// Usage:
//
//	world, err := engine.LoadString("Dimension: (5, 5)\nRobot: (1, 1) east\nRobotBag: INFINITE\n")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	karel := world.Robot()
//	if err := karel.Move(); errors.Is(err, engine.ErrBlocked) {
//		// hit a wall
//	}
//	fmt.Print(world.Render())
//
// Rules:
//
// Corners are 1-based, x running west to east and y south to north. The
// outer border is not part of the wall set; CheckWall reports it as blocked.
// A World is not safe for concurrent use; callers serialise access.
package engine
