// Package server implements the WebSocket transport and HTTP surface of the
// room chat service.
//
// The implementation is organized into specialized files for the hub,
// clients, the inbound protocol, origin checks, rate limiting, routing and
// HTTP handlers. Chat state lives in package chat; this package only decodes
// frames, hands them to the engine, and writes queued events back out.
package server
