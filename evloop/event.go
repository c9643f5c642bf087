package evloop

import (
	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/engine"
)

// Callback receives the descriptor and the triggered condition bits,
// synchronously on the reactor's dispatch goroutine.
type Callback func(fd int, what engine.Mask)

// Event binds a callback to one event source for the reactor's lifetime.
// Construction registers but does not arm; Add arms. Registrations are
// one-shot and must be re-armed after each firing.
type Event struct {
	cb Callback
	ev *engine.Event
}

// NewEvent registers cb for (fd, mask) on base. Pass a negative fd for a
// pure timer.
func NewEvent(base *Base, fd int, mask engine.Mask, cb Callback) *Event {
	e := &Event{cb: cb}
	ev, err := base.loop.NewEvent(fd, mask, func(fd int, what engine.Mask) {
		e.cb(fd, what)
	})
	if err != nil {
		log.Fatal().Err(err).Int("fd", fd).Msg("evloop: register event")
	}
	e.ev = ev
	return e
}

// Add arms the event. A negative timeout means no deadline; otherwise the
// timeout is split into whole seconds and microseconds before being handed
// to the engine.
func (e *Event) Add(timeout float64) {
	if err := e.ev.Add(engine.TimevalFromSeconds(timeout)); err != nil {
		log.Fatal().Err(err).Msg("evloop: arm event")
	}
}

// Close releases the registration; the callback never fires afterwards.
func (e *Event) Close() {
	e.ev.Close()
}
