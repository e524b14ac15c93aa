// Package chat implements the room chat protocol on top of the realtime
// registry: inbound frame parsing, per-event handling and the lifecycle of a
// single client connection.
//
// A connection moves through Connecting, Authenticating, Active, Closing and
// Closed. Authentication happens after the WebSocket upgrade; a rejected
// credential closes the socket with status 4001 and the connection is never
// registered.
//
// Reconnection is a client policy. Clients are expected to:
//
//   - reconnect with exponential backoff after any close other than 1000,
//     4001 and 4002;
//   - not reconnect after 4001 (authentication failed) until they obtain a
//     new credential;
//   - not reconnect after 4002 (superseded): a newer connection for the same
//     identity and room now owns the session;
//   - rebuild state after reconnecting by fetching
//     GET /api/rooms/:roomID/messages and then applying live events.
//
// Delivery is only guaranteed while the recipient's connection is registered
// in this process. Events emitted while a client is disconnected are not
// replayed.
package chat
