// Package evhttp is the HTTP half of the engine: an accepting server that
// dispatches parsed requests to per-path callbacks on the loop goroutine,
// and an outbound connection that resolves, dials, and completes client
// requests back on the same loop.
//
// Wire parsing is delegated to net/http's message primitives; this package
// only owns connection handling, routing, and completion delivery.
package evhttp
