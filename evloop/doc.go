// Package evloop is the object layer over the event engine: a reactor
// (Base) that owns one loop and a lazily created resolver, typed event
// registrations, and an HTTP server/client façade riding the same loop.
//
// Error policy: failures to create or control native resources (loop,
// registration, listener, connection, bind, arm, dispatch) are treated as
// unrecoverable and abort the process with a diagnostic. They indicate
// environment exhaustion or programmer misuse, which this layer does not
// recover from. The one deliberate exception is HTTPServer.AddHandler,
// whose duplicate-path failure is reported as a boolean so callers can
// probe registration. Protocol-level request failures are not errors at
// this layer at all; they arrive in the completion callback's result state.
package evloop
