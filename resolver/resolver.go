// Package resolver provides asynchronous host resolution bound to an engine
// loop. Lookups run off-thread; completion callbacks are always delivered on
// the loop goroutine.
//
// Nameservers come from /etc/resolv.conf and are queried directly with
// github.com/miekg/dns. When no resolver configuration is available the
// standard library resolver is used instead.
package resolver

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"github.com/JamesKing9/certificate-transparency/engine"
)

const (
	resolvConf    = "/etc/resolv.conf"
	queryTimeout  = 1500 * time.Millisecond
	lookupTimeout = 5 * time.Second
)

// ErrClosed is returned for lookups issued after Close.
var ErrClosed = errors.New("resolver: closed")

// Callback receives the resolved addresses, or the lookup error. It is
// invoked exactly once per lookup, on the loop goroutine.
type Callback func(addrs []string, err error)

// Resolver resolves hostnames for a single loop.
type Resolver struct {
	loop      *engine.Loop
	client    *dns.Client
	servers   []string
	randomize bool
	closed    atomic.Bool
}

// New creates a resolver bound to loop. When randomize is set the configured
// nameservers are tried in rotated order per lookup.
func New(loop *engine.Loop, randomize bool) (*Resolver, error) {
	if loop == nil {
		return nil, errors.New("resolver: nil loop")
	}
	var servers []string
	if cfg, err := dns.ClientConfigFromFile(resolvConf); err == nil {
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return &Resolver{
		loop:      loop,
		client:    &dns.Client{Timeout: queryTimeout},
		servers:   servers,
		randomize: randomize,
	}, nil
}

// LookupHost resolves host and posts cb to the loop. IP literals complete
// without a query.
func (r *Resolver) LookupHost(host string, cb Callback) error {
	if cb == nil {
		return errors.New("resolver: nil callback")
	}
	if r.closed.Load() {
		return ErrClosed
	}
	if ip := net.ParseIP(host); ip != nil {
		r.loop.Post(func() { cb([]string{ip.String()}, nil) })
		return nil
	}
	go func() {
		addrs, err := r.lookup(host)
		r.loop.Post(func() { cb(addrs, err) })
	}()
	return nil
}

// Close stops accepting new lookups. Lookups already in flight still
// complete.
func (r *Resolver) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Resolver) lookup(host string) ([]string, error) {
	if len(r.servers) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		return net.DefaultResolver.LookupHost(ctx, host)
	}

	servers := r.servers
	if r.randomize && len(servers) > 1 {
		off := rand.Intn(len(servers))
		rotated := make([]string, 0, len(servers))
		rotated = append(rotated, servers[off:]...)
		rotated = append(rotated, servers[:off]...)
		servers = rotated
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, srv := range servers {
		in, _, err := r.client.Exchange(m, srv)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			return nil, &net.DNSError{
				Err:        dns.RcodeToString[in.Rcode],
				Name:       host,
				Server:     srv,
				IsNotFound: in.Rcode == dns.RcodeNameError,
			}
		}
		var addrs []string
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) == 0 {
			return nil, &net.DNSError{Err: "no A records", Name: host, Server: srv, IsNotFound: true}
		}
		return addrs, nil
	}
	if lastErr == nil {
		lastErr = errors.New("resolver: no nameservers configured")
	}
	return nil, lastErr
}
