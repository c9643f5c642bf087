package engine

import (
	"math"
	"time"
)

// Mask describes the conditions a registration waits for, and the conditions
// that actually triggered when the callback fires.
type Mask uint16

const (
	// EvTimeout is delivered when a registration's deadline expires before
	// any readiness condition triggers.
	EvTimeout Mask = 1 << iota
	// EvRead signals the descriptor is readable.
	EvRead
	// EvWrite signals the descriptor is writable.
	EvWrite
)

// Timeval is a second/microsecond deadline pair, the form the poll backend
// consumes. A nil *Timeval means "no deadline".
type Timeval struct {
	Sec  int64
	Usec int64
}

// Duration converts the pair into a time.Duration.
func (tv Timeval) Duration() time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

// TimevalFromSeconds splits a floating-point timeout in seconds into whole
// seconds and microseconds. Negative timeouts mean "no deadline" and yield
// nil. Sec is the floor of the input; Usec is the fractional part rounded to
// microsecond resolution.
func TimevalFromSeconds(timeout float64) *Timeval {
	if timeout < 0 {
		return nil
	}
	sec := math.Floor(timeout)
	usec := math.Round((timeout - sec) * 1e6)
	return &Timeval{Sec: int64(sec), Usec: int64(usec)}
}
