package evloop

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/evhttp"
)

// HandlerCallback handles one inbound request, on the dispatch goroutine.
type HandlerCallback func(req *evhttp.ServerRequest)

// HTTPServer accepts inbound requests on a bound listener and routes them
// by exact path match.
type HTTPServer struct {
	srv *evhttp.Server

	mu       sync.Mutex
	handlers []*handlerRecord
}

// handlerRecord retains one (path, callback) binding for the server's
// lifetime. Records are only released en masse with the server.
type handlerRecord struct {
	path string
	cb   HandlerCallback
}

// NewHTTPServer creates a server whose listener is bound to base's loop.
func NewHTTPServer(base *Base, opts ...evhttp.ServerOption) *HTTPServer {
	return &HTTPServer{srv: evhttp.NewServer(base.loop, opts...)}
}

// Bind binds the listener socket.
func (s *HTTPServer) Bind(address string, port uint16) {
	if err := s.srv.Bind(address, port); err != nil {
		log.Fatal().Err(err).Str("address", address).Uint16("port", port).
			Msg("evloop: bind http server")
	}
}

// Port reports the bound port, which differs from the requested one when
// binding to port 0.
func (s *HTTPServer) Port() uint16 {
	return s.srv.Port()
}

// AddHandler retains a (path, cb) record and registers it for dispatch.
// Registration failure, such as a duplicate path, is reported as false and
// leaves the earlier registration in effect.
func (s *HTTPServer) AddHandler(path string, cb HandlerCallback) bool {
	h := &handlerRecord{path: path, cb: cb}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()

	err := s.srv.SetCallback(path, func(req *evhttp.ServerRequest) {
		h.cb(req)
	})
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("evloop: add handler")
	}
	return err == nil
}

// Close releases the listener and every handler record. Nothing dispatches
// after Close begins.
func (s *HTTPServer) Close() {
	s.srv.Close()
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}
