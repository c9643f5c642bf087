package evhttp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/engine"
	"github.com/JamesKing9/certificate-transparency/resolver"
)

const dialTimeout = 10 * time.Second

// Connection is one logical outbound target (host, port). Each submitted
// request is resolved through the bound resolver, dialed, and completed on
// the loop goroutine — exactly once, whatever fails along the way.
type Connection struct {
	loop *engine.Loop
	res  *resolver.Resolver
	host string
	port uint16

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates a connection bound to loop and res targeting
// host:port. Port 0 defers to the HTTP default at dial time.
func NewConnection(loop *engine.Loop, res *resolver.Resolver, host string, port uint16) (*Connection, error) {
	if loop == nil || res == nil {
		return nil, errors.New("evhttp: connection needs a loop and a resolver")
	}
	if host == "" {
		return nil, errors.New("evhttp: connection needs a host")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{loop: loop, res: res, host: host, port: port, ctx: ctx, cancel: cancel}, nil
}

// MakeRequest submits req with the given method and path, transferring
// ownership of req into the engine. From here on the request completes
// exactly once through its done callback.
func (c *Connection) MakeRequest(req *ClientRequest, method, path string) error {
	if req == nil {
		return errors.New("evhttp: nil request")
	}
	if method == "" {
		return errors.New("evhttp: empty method")
	}
	if err := req.submit(); err != nil {
		return err
	}
	if path == "" {
		path = "/"
	}
	err := c.res.LookupHost(c.host, func(addrs []string, err error) {
		if err != nil {
			req.finish(0, nil, nil, fmt.Errorf("resolve %s: %w", c.host, err))
			return
		}
		go c.roundTrip(req, method, path, addrs)
	})
	if err != nil {
		// The submission claim stands; complete through the normal path.
		c.loop.Post(func() { req.finish(0, nil, nil, err) })
	}
	return nil
}

// Close cancels in-flight dials. Their requests still complete, with an
// error.
func (c *Connection) Close() error {
	c.cancel()
	return nil
}

// roundTrip runs off-loop; the completion is posted back.
func (c *Connection) roundTrip(req *ClientRequest, method, path string, addrs []string) {
	code, header, body, err := c.exchange(req, method, path, addrs)
	c.loop.Post(func() { req.finish(code, header, body, err) })
}

func (c *Connection) exchange(req *ClientRequest, method, path string, addrs []string) (int, http.Header, []byte, error) {
	port := c.port
	if port == 0 {
		port = 80
	}
	if len(addrs) == 0 {
		return 0, nil, nil, fmt.Errorf("resolve %s: no addresses", c.host)
	}

	var conn net.Conn
	var err error
	d := net.Dialer{Timeout: dialTimeout}
	for _, addr := range addrs {
		conn, err = d.DialContext(c.ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
		if err == nil {
			break
		}
	}
	if conn == nil {
		return 0, nil, nil, fmt.Errorf("dial %s: %w", c.host, err)
	}
	defer conn.Close()

	u, err := url.ParseRequestURI(path)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request path %q: %w", path, err)
	}
	hreq := &http.Request{
		Method:        method,
		URL:           u,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Host:          net.JoinHostPort(c.host, strconv.Itoa(int(port))),
		Header:        req.Header,
		ContentLength: int64(len(req.Body)),
		Close:         true,
	}
	if len(req.Body) > 0 {
		hreq.Body = io.NopCloser(bytes.NewReader(req.Body))
	}
	log.Debug().Stringer("id", req.ID()).Str("method", method).Str("host", hreq.Host).
		Str("path", path).Msg("evhttp: sending request")

	if err := hreq.Write(conn); err != nil {
		return 0, nil, nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), hreq)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}
