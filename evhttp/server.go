package evhttp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/engine"
)

var (
	// ErrDuplicatePath is returned when a path already has a callback.
	ErrDuplicatePath = errors.New("evhttp: path already has a callback")

	// ErrServerClosed is returned for operations on a closed server.
	ErrServerClosed = errors.New("evhttp: server closed")
)

// HandlerFunc handles one inbound request on the loop goroutine. The reply
// may be sent after the function returns; the connection is held until then.
type HandlerFunc func(*ServerRequest)

// ServerOption customizes server construction.
type ServerOption func(*Server)

// WithReadTimeout bounds how long the server waits for the next request on
// an idle connection.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.readTimeout = d }
}

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) { s.maxBody = n }
}

// Server accepts HTTP connections and routes requests by exact path match.
// Parsing happens on per-connection goroutines; callbacks always run on the
// loop goroutine, one reply per request, in arrival order per connection.
type Server struct {
	loop        *engine.Loop
	readTimeout time.Duration
	maxBody     int64

	mu        sync.Mutex
	listeners []net.Listener
	paths     map[string]HandlerFunc
	conns     map[net.Conn]struct{}
	closed    bool

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server bound to loop. It owns no listener until Bind.
func NewServer(loop *engine.Loop, opts ...ServerOption) *Server {
	s := &Server{
		loop:     loop,
		maxBody:  4 << 20,
		paths:    make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bind opens a listener on addr:port and starts accepting. Port 0 picks an
// ephemeral port, reported by Port. Bind may be called more than once.
func (s *Server) Bind(addr string, port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("evhttp: bind %s:%d: %w", addr, port, err)
	}
	s.listeners = append(s.listeners, ln)
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Port reports the actual port of the first listener, 0 if unbound.
func (s *Server) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return 0
	}
	if ta, ok := s.listeners[0].Addr().(*net.TCPAddr); ok {
		return uint16(ta.Port)
	}
	return 0
}

// SetCallback routes requests whose path exactly equals path to cb. A path
// can be claimed once; later claims fail and the first stays in effect.
func (s *Server) SetCallback(path string, cb HandlerFunc) error {
	if cb == nil {
		return errors.New("evhttp: nil callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if _, ok := s.paths[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, path)
	}
	s.paths[path] = cb
	return nil
}

// Close stops all listeners and connections. Requests already queued to the
// loop are answered with a close instead of user dispatch.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lns := s.listeners
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	close(s.shutdown)
	for _, ln := range lns {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	br := bufio.NewReader(conn)
	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, s.maxBody))
		req.Body.Close()
		if err != nil {
			return
		}

		sr := newServerRequest(req, body, conn)
		s.loop.Post(func() { s.dispatch(sr) })

		select {
		case <-sr.done:
		case <-s.shutdown:
			return
		}
		if sr.closeAfter {
			return
		}
	}
}

// dispatch runs on the loop goroutine.
func (s *Server) dispatch(sr *ServerRequest) {
	s.mu.Lock()
	cb := s.paths[sr.URI.Path]
	closed := s.closed
	s.mu.Unlock()

	if closed {
		sr.abort()
		return
	}
	if cb == nil {
		log.Debug().Stringer("id", sr.ID).Str("path", sr.URI.Path).
			Msg("evhttp: no callback for path")
		sr.SendError(http.StatusNotFound, "Not Found")
		return
	}
	log.Debug().Stringer("id", sr.ID).Str("method", sr.Method).
		Str("path", sr.URI.Path).Msg("evhttp: dispatching request")
	cb(sr)
}
