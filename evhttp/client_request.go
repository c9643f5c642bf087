package evhttp

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrRequestSubmitted is returned when a request is submitted twice.
	ErrRequestSubmitted = errors.New("evhttp: request already submitted")

	// ErrRequestFreed is returned when a freed request is submitted.
	ErrRequestFreed = errors.New("evhttp: request already freed")
)

const (
	reqCreated int32 = iota
	reqSubmitted
	reqCompleted
	reqFreed
)

// DoneFunc observes completion of a client request, on the loop goroutine,
// exactly once per submitted request.
type DoneFunc func(*ClientRequest)

// ClientRequest is one outbound request's lifecycle. Header and Body are
// filled before submission; Code, RespHeader, RespBody, and Err are valid
// once the done callback fires. Ownership transfers to the connection at
// submission; after that the request must not be freed or resubmitted.
type ClientRequest struct {
	id   uuid.UUID
	done DoneFunc

	// Outgoing message, caller-owned until submission.
	Header http.Header
	Body   []byte

	// Result, engine-owned until completion.
	Code       int
	RespHeader http.Header
	RespBody   []byte
	Err        error

	state atomic.Int32
}

// NewClientRequest creates a request whose completion is observed by done.
func NewClientRequest(done DoneFunc) *ClientRequest {
	return &ClientRequest{
		id:     uuid.New(),
		done:   done,
		Header: make(http.Header),
	}
}

// ID tags the request in diagnostics.
func (r *ClientRequest) ID() uuid.UUID { return r.id }

// Free releases a request that was never submitted. Freeing twice is a
// no-op; freeing after submission fails since the engine owns it.
func (r *ClientRequest) Free() error {
	for {
		switch s := r.state.Load(); s {
		case reqCreated:
			if r.state.CompareAndSwap(s, reqFreed) {
				return nil
			}
		case reqFreed:
			return nil
		default:
			return ErrRequestSubmitted
		}
	}
}

// submit claims the request for the engine.
func (r *ClientRequest) submit() error {
	if r.state.CompareAndSwap(reqCreated, reqSubmitted) {
		return nil
	}
	if r.state.Load() == reqFreed {
		return ErrRequestFreed
	}
	return ErrRequestSubmitted
}

// finish records the outcome and fires the done callback. Runs on the loop
// goroutine; the state guard makes completion single-shot.
func (r *ClientRequest) finish(code int, header http.Header, body []byte, err error) {
	if !r.state.CompareAndSwap(reqSubmitted, reqCompleted) {
		return
	}
	r.Code = code
	r.RespHeader = header
	r.RespBody = body
	r.Err = err
	if r.done != nil {
		r.done(r)
	}
}
