// Package program defines how robot programs are written and run.
//
// A program is written against one of two capability sets: Karel (the four
// primitives and the sensors) or SuperKarel (Karel plus single-step turns,
// paint, randomness and pause). Go programs are plain functions:
//
//	square := program.New("square", func(k program.Karel) {
//		for i := 0; i < 4; i++ {
//			k.Move()
//			k.TurnLeft()
//		}
//	})
//	err := square.Execute(ctx, robot, program.WithInstructionLimit(1000))
//
// Instructions do not return errors to user code. The first failing
// instruction aborts the program and Execute returns its *engine.Error.
// Cancellation of ctx is observed before each instruction.
//
// Programs are looked up by name in a Registry; there is no implicit
// discovery.
package program
