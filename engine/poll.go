package engine

// pollEvent is one readiness notification reported by the platform backend.
type pollEvent struct {
	fd   int
	what Mask
}

// poller is the platform notification backend. Implementations must support
// concurrent wake calls while another goroutine blocks in wait; everything
// else is called from the loop goroutine or under the loop mutex.
type poller interface {
	// add registers a descriptor for one-shot notification of mask.
	add(fd int, mask Mask) error

	// del removes a previously added descriptor.
	del(fd int) error

	// wait blocks up to timeoutMs (-1 blocks indefinitely) and fills evs
	// with triggered notifications. Wakeup notifications are consumed
	// internally; an interrupted wait reports zero events without error.
	wait(evs []pollEvent, timeoutMs int) (int, error)

	// wake interrupts a concurrent wait call.
	wake()

	close() error
}
