// Package websocket provides WebSocket transport for the Karel simulator.
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a read and a
// write goroutine; the hub goroutine owns registration and fan-out.
//
// Message Protocol:
//
// Clients subscribe to one session with ?session=<id>. The first message is
// {"type": "connected", "session_id": "<id>"}. After that every value passed
// to Hub.Broadcast for the session arrives as one JSON text frame, typically
// a service.Event (trace, run_started, run_finished, world, reset).
// Messages from clients are ignored.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
//
// Concurrency:
//
// Broadcast and HasSubscribers are safe to call from any goroutine, including
// a running program's trace hook. Broadcast never blocks: when the hub falls
// behind messages are dropped, and a client that cannot keep up is
// disconnected.
package websocket
