// Package mcp exposes Karel to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request to the REST
// API served by package api, so an agent and a browser watching the
// WebSocket stream see the same sessions.
//
// Tools:
//   - create_session, list_sessions, get_session
//   - render_world, load_world, place_robot, toggle_wall, set_beepers, reset_world
//   - run_program, cancel_run, run_history, list_programs
//   - list_worlds, get_world, karel_instructions
//
// Tools that change a world answer with its ASCII rendering.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
