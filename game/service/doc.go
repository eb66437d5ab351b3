// Package service provides the business logic layer for the Karel simulator.
//
// The service package implements:
//   - Multi-session management on top of session.Manager
//   - World selection from the world library
//   - Running registered Go programs and submitted Lua programs
//   - Run history recording
//   - Event fan-out to live subscribers
//
// Core Interfaces:
//
// KarelService is the main service interface used by the REST API and the
// CLI. SessionManager, WorldLibrary and HistoryStore are the storage it
// works against; Broadcaster receives session events.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	sessions := session.NewManager(logger, session.WithTrace(service.TraceBroadcaster(hub)))
//	svc := service.NewKarelService(sessions, worlds, programs,
//		service.WithBroadcaster(hub),
//		service.WithHistory(store),
//	)
//
//	info, err := svc.CreateSession(ctx, "maze")
//	if err != nil {
//		return err
//	}
//	resp, err := svc.Run(ctx, info.ID, service.RunRequest{Program: "maze"})
//
// Runs:
//
// A run uses the session's loaded world. A session without a world gets the
// world the program names, else a library world named after the program,
// else the default world. A world without a robot gets one on (1, 1) facing
// East with an infinite bag. A session whose last run finished must be reset
// (RunRequest.Reset) or given a new world before it runs again.
package service
