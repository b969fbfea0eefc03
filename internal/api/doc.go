// Package api implements the HTTP surface of "wlanctl serve".
//
// # Overview
//
// The API runs in the serving process next to the control plane and is
// read-only: it exposes metrics, the manager's status, the event journal and
// a live websocket stream of hub events. Changes go through the control
// plane socket, never through HTTP.
//
// # Endpoints
//
//	GET /metrics              Prometheus metrics
//	GET /api/status           wifi.Status as JSON
//	GET /api/events/recent    newest journal lines (?limit=N)
//	GET /api/events/hourly    hourly event counts (?name=EVENT&days=N)
//	GET /api/events           websocket stream (?topics=events,status,props)
//	GET /api/health           liveness
//
// # Request Flow
//
//	HTTP Request → Middleware → Handler → wifi.Manager / events.Journal
//
// # Adding New Endpoints
//
//  1. Create handler function: func (s *Server) handleFoo(w, r)
//  2. Register the route in initRoutes
//  3. Add a test in server_test.go
package api
