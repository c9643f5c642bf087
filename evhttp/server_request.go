package evhttp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrAlreadyReplied is returned by a second reply attempt for one request.
var ErrAlreadyReplied = errors.New("evhttp: request already replied")

// ServerRequest is one parsed inbound request. Exactly one reply must be
// sent per request; until then the owning connection reads no further
// requests.
type ServerRequest struct {
	// ID tags the request in diagnostics.
	ID uuid.UUID

	Method string
	URI    *url.URL
	Header http.Header
	Body   []byte

	protoMajor int
	protoMinor int
	wantClose  bool
	remote     net.Addr
	conn       net.Conn

	respHeader http.Header
	replied    atomic.Bool
	closeAfter bool
	done       chan struct{}
}

func newServerRequest(req *http.Request, body []byte, conn net.Conn) *ServerRequest {
	return &ServerRequest{
		ID:         uuid.New(),
		Method:     req.Method,
		URI:        req.URL,
		Header:     req.Header,
		Body:       body,
		protoMajor: req.ProtoMajor,
		protoMinor: req.ProtoMinor,
		wantClose:  req.Close,
		remote:     conn.RemoteAddr(),
		conn:       conn,
		respHeader: make(http.Header),
		done:       make(chan struct{}),
	}
}

// RemoteAddr reports the peer address.
func (r *ServerRequest) RemoteAddr() net.Addr { return r.remote }

// ResponseHeader is the header set sent with the reply. Mutate it before
// calling SendReply.
func (r *ServerRequest) ResponseHeader() http.Header { return r.respHeader }

// SendReply writes the response and releases the connection for the next
// request. It may be called after the handler callback has returned, but
// only once per request.
func (r *ServerRequest) SendReply(code int, body []byte) error {
	if !r.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	resp := &http.Response{
		StatusCode:    code,
		ProtoMajor:    r.protoMajor,
		ProtoMinor:    r.protoMinor,
		Header:        r.respHeader,
		ContentLength: int64(len(body)),
		Close:         r.wantClose,
	}
	if len(body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	err := resp.Write(r.conn)
	r.closeAfter = r.wantClose || err != nil
	close(r.done)
	return err
}

// SendError replies with a plain-text error body.
func (r *ServerRequest) SendError(code int, reason string) error {
	r.respHeader.Set("Content-Type", "text/plain; charset=utf-8")
	return r.SendReply(code, []byte(reason+"\n"))
}

// abort retires the request without a reply and drops the connection.
func (r *ServerRequest) abort() {
	if !r.replied.CompareAndSwap(false, true) {
		return
	}
	r.closeAfter = true
	close(r.done)
}
