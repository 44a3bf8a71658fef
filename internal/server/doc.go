// Package server exposes the sync engine to local clients.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added. Each [Handler] contributes [Route] values whose patterns carry
// the method, and [BasicRouter] registers them on an [http.ServeMux].
//
// # Command Surface
//
// [APIHandler] serves JSON endpoints matching the engine operations:
//
//	GET  /api/track          current track (204 when nothing is playing)
//	GET  /api/lyrics         lyrics for ?artist=&title=, or the current track
//	GET  /api/state          sync snapshot
//	POST /api/offset/adjust  {"delta": ms}
//	POST /api/offset/reset
//	POST /api/scroll         {"scrolled": bool}
//
// POST bodies must be sent as application/json; anything else gets 415.
//
// # Event Stream
//
// [EventsHandler] upgrades same-origin requests to /api/events to a WebSocket, sends the current snapshot, then
// forwards engine events.
// Delivery is best effort; slow clients miss events.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, exchanges the authorization code through the session and reports
// the outcome on a channel. It only processes one callback.
package server
