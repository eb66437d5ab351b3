// Package session runs Karel programs against a world and keeps track of
// many such runs.
//
// Core Types:
//
// Session owns one world and its life cycle:
//
//	Idle -> Loaded -> Running -> {Completed | Failed | Cancelled}
//
// LoadWorld parses a world file and snapshots it; PlaceRobot adds robots;
// Run executes a program.Program to completion and reports a Result with the
// outcome, the error kind and message, and the number of instructions
// executed. Reset restores the snapshot. A session serialises access to its
// world, which is not safe for concurrent use.
//
// Manager is a thread-safe registry of sessions keyed by case-insensitive
// IDs. Generated IDs are four hex characters. With a SessionPersistence the
// manager saves sessions as they change and loads them on demand.
//
// Usage:
//
//	manager := session.NewManager(logger)
//
//	sess, err := manager.Create("")
//	if err != nil {
//		return err
//	}
//	if err := sess.LoadWorldText("corridor", text); err != nil {
//		return err
//	}
//	res, err := sess.Run(ctx, program.New("step", func(k program.Karel) {
//		k.Move()
//	}))
//
// Persistence:
//
// FilePersistence stores each session as <id>.w, the current world in
// world-file format, and <id>.json with the metadata and the world Reset
// returns to. A session saved while running is restored as Cancelled.
package session
