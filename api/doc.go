// Package api provides the HTTP REST API for the Karel simulator.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions               - Create a session ({"world": "maze"})
//   - GET    /api/sessions               - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/{id}          - Get a session with its world snapshot
//   - DELETE /api/sessions/{id}          - Delete a session and its run history
//
// World operations:
//   - POST /api/sessions/{id}/world  - Load a library world or inline world text
//   - PUT  /api/sessions/{id}/world  - Save the session's world to the library
//   - POST /api/sessions/{id}/robot  - Place the robot
//   - POST /api/sessions/{id}/edit   - Toggle walls, click corners, set beepers and colors
//   - POST /api/sessions/{id}/reset  - Restore the world to its loaded state
//   - GET  /api/sessions/{id}/render - ASCII rendering (text/plain)
//
// Programs:
//   - POST /api/sessions/{id}/run     - Run a registered program or Lua source
//   - POST /api/sessions/{id}/cancel  - Cancel the running program
//   - GET  /api/sessions/{id}/history - Run history (?page=1&limit=20&order=desc)
//   - GET  /api/programs              - List registered programs
//
// World library:
//   - GET /api/worlds        - List worlds
//   - GET /api/worlds/{name} - World summary, file text and snapshot
//   - PUT /api/worlds/{name} - Save a world file sent as the request body
//
// Live updates:
//   - GET /ws?session={id} - WebSocket stream of session events
//
// Error Handling:
//
// Errors are returned as JSON, {"error": "message"}, with 404 for unknown
// sessions, worlds and programs, 409 for requests the session's state does
// not allow (a run in progress, a finished run not yet reset), 400 for
// invalid input and engine errors, and 501 when run history is disabled.
package api
