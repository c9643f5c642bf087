// Package engine implements the event-notification engine the rest of the
// module rides on: a single-threaded loop multiplexing socket readiness,
// timers, posted jobs, and signal-driven exit.
//
// The loop is backed by epoll on Linux (see poll_linux.go); other platforms
// get an erroring stub. Registrations are one-shot: once a registration
// fires, either on readiness or on timeout, it stays disarmed until Add is
// called again. All callbacks run on the goroutine driving Run or RunOnce.
//
// Cross-thread interaction is supported through Post and through arming
// events from other goroutines; both wake a blocking wait via an eventfd.
package engine
