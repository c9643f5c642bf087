package engine

import (
	"container/heap"
	"errors"
	"fmt"
	"time"
)

// ErrEventClosed is returned when arming a registration after Close.
var ErrEventClosed = errors.New("engine: event is closed")

// Event is one (descriptor, mask, callback) registration. Construction does
// not arm it; Add does. Registrations are one-shot: after the callback fires
// the event must be re-armed with Add before it can fire again.
type Event struct {
	loop *Loop
	fd   int
	mask Mask
	cb   func(fd int, what Mask)

	// guarded by loop.mu
	armed  bool
	inPoll bool
	closed bool
	timer  *timerEntry
}

// NewEvent registers cb against fd and mask on this loop without arming it.
// A negative fd makes a pure timer registration.
func (l *Loop) NewEvent(fd int, mask Mask, cb func(fd int, what Mask)) (*Event, error) {
	if cb == nil {
		return nil, errors.New("engine: nil event callback")
	}
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}
	return &Event{loop: l, fd: fd, mask: mask, cb: cb}, nil
}

// Add arms the registration. With a nil Timeval the event waits indefinitely
// for its readiness condition; otherwise EvTimeout is delivered if the
// deadline expires first. Re-adding an armed event replaces its deadline.
func (ev *Event) Add(tv *Timeval) error {
	l := ev.loop
	l.mu.Lock()
	if ev.closed {
		l.mu.Unlock()
		return ErrEventClosed
	}
	if ev.fd >= 0 && ev.mask&(EvRead|EvWrite) != 0 && !ev.inPoll {
		if other, ok := l.fdEvs[ev.fd]; ok && other != ev {
			l.mu.Unlock()
			return fmt.Errorf("engine: fd %d already has a registration", ev.fd)
		}
		if err := l.p.add(ev.fd, ev.mask); err != nil {
			l.mu.Unlock()
			return err
		}
		l.fdEvs[ev.fd] = ev
		ev.inPoll = true
	}
	if ev.timer != nil {
		if ev.timer.index >= 0 {
			heap.Remove(&l.timers, ev.timer.index)
		}
		ev.timer.ev = nil
		ev.timer = nil
	}
	if tv != nil {
		te := &timerEntry{deadline: time.Now().Add(tv.Duration()), ev: ev}
		heap.Push(&l.timers, te)
		ev.timer = te
	}
	ev.armed = true
	l.mu.Unlock()
	l.p.wake()
	return nil
}

// Close releases the registration. No callback fires after Close returns on
// the loop goroutine; from other goroutines Close must not race an in-flight
// callback for the same event.
func (ev *Event) Close() {
	l := ev.loop
	l.mu.Lock()
	if !ev.closed {
		l.disarmLocked(ev)
		ev.closed = true
	}
	l.mu.Unlock()
}
