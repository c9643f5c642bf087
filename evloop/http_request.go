package evloop

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/evhttp"
)

// RequestCallback observes completion of an outbound request. It fires
// exactly once per submitted request, on the dispatch goroutine, for
// success and failure alike; the result state distinguishes them.
type RequestCallback func(req *HTTPRequest)

// HTTPRequest is the completion future of one outbound request. At
// submission (see HTTPConnection.MakeRequest) ownership of the underlying
// request passes to the engine; once the completion callback has fired the
// handle reference is dropped and the object must not be used further.
type HTTPRequest struct {
	cb  RequestCallback
	req *evhttp.ClientRequest
}

// NewHTTPRequest creates a request whose completion invokes cb.
func NewHTTPRequest(cb RequestCallback) *HTTPRequest {
	r := &HTTPRequest{cb: cb}
	r.req = evhttp.NewClientRequest(r.finish)
	return r
}

// finish is the engine's completion trampoline.
func (r *HTTPRequest) finish(req *evhttp.ClientRequest) {
	if req != r.req {
		log.Fatal().Stringer("id", req.ID()).Msg("evloop: completion for foreign request")
	}
	r.cb(r)
	// The engine retires the underlying request as soon as this returns;
	// drop our reference so Close does not release it a second time.
	r.req = nil
}

// Header is the outgoing header set; fill it before submission.
func (r *HTTPRequest) Header() http.Header {
	if r.req == nil {
		return nil
	}
	return r.req.Header
}

// SetBody sets the outgoing request body; call before submission.
func (r *HTTPRequest) SetBody(body []byte) {
	if r.req != nil {
		r.req.Body = body
	}
}

// StatusCode reports the response status, valid inside the completion
// callback when Err is nil.
func (r *HTTPRequest) StatusCode() int {
	if r.req == nil {
		return 0
	}
	return r.req.Code
}

// ResponseHeader reports the response headers.
func (r *HTTPRequest) ResponseHeader() http.Header {
	if r.req == nil {
		return nil
	}
	return r.req.RespHeader
}

// ResponseBody reports the response body.
func (r *HTTPRequest) ResponseBody() []byte {
	if r.req == nil {
		return nil
	}
	return r.req.RespBody
}

// Err reports why the request failed, nil on success.
func (r *HTTPRequest) Err() error {
	if r.req == nil {
		return nil
	}
	return r.req.Err
}

// Close releases a request that was never submitted. After submission the
// engine owns the request and completion is the only release path, so Close
// becomes a no-op.
func (r *HTTPRequest) Close() {
	if r.req != nil {
		r.req.Free()
		r.req = nil
	}
}

// native exposes the engine request for submission by HTTPConnection.
func (r *HTTPRequest) native() *evhttp.ClientRequest {
	return r.req
}
