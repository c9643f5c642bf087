package evloop

import (
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/evhttp"
)

// HTTPConnection is one logical outbound connection, created from a target
// URI and bound to the reactor's resolver.
type HTTPConnection struct {
	conn *evhttp.Connection
}

// NewHTTPConnection extracts host and port from target and creates a
// connection bound to base's loop and resolver. A URI without a scheme
// aborts, matching the setup-failure policy.
func NewHTTPConnection(base *Base, target string) *HTTPConnection {
	u, err := url.Parse(target)
	if err != nil {
		log.Fatal().Err(err).Str("uri", target).Msg("evloop: parse target uri")
	}
	if u.Scheme == "" {
		log.Fatal().Str("uri", target).Msg("evloop: target uri has no scheme")
	}
	conn, err := evhttp.NewConnection(base.loop, base.Resolver(), u.Hostname(), PortFromURI(u))
	if err != nil {
		log.Fatal().Err(err).Str("uri", target).Msg("evloop: create http connection")
	}
	return &HTTPConnection{conn: conn}
}

// PortFromURI derives the connection port. URIs without a valid explicit
// port (1–65535) default to 80 when the scheme is exactly "http" and to 0
// otherwise, leaving the choice to the engine.
func PortFromURI(u *url.URL) uint16 {
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		if u.Scheme == "http" {
			return 80
		}
		return 0
	}
	return uint16(port)
}

// MakeRequest submits req against this connection, transferring ownership
// of the underlying request into the engine. Submission failure, such as
// resubmitting a completed request, aborts.
func (c *HTTPConnection) MakeRequest(req *HTTPRequest, method, path string) {
	if err := c.conn.MakeRequest(req.native(), method, path); err != nil {
		log.Fatal().Err(err).Str("method", method).Str("path", path).
			Msg("evloop: make request")
	}
}

// Close releases the connection; in-flight requests still complete, with an
// error.
func (c *HTTPConnection) Close() {
	c.conn.Close()
}
