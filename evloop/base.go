package evloop

import (
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/JamesKing9/certificate-transparency/engine"
	"github.com/JamesKing9/certificate-transparency/resolver"
)

// Base owns one event loop and its lazily created resolver, and stamps out
// events, HTTP servers, and outbound connections bound to that loop.
type Base struct {
	loop *engine.Loop

	dnsMu sync.Mutex
	dns   *resolver.Resolver
}

// New creates a reactor with cross-thread wakeup enabled, so events
// registered from other goroutines interrupt a blocking Dispatch.
func New() *Base {
	loop, err := engine.NewLoop()
	if err != nil {
		log.Fatal().Err(err).Msg("evloop: create event loop")
	}
	return &Base{loop: loop}
}

// Dispatch installs exit-on-signal handlers for SIGHUP, SIGINT, and SIGTERM,
// then runs the loop until exit is requested.
func (b *Base) Dispatch() {
	for _, sig := range []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM} {
		b.loop.ExitOnSignal(sig)
	}
	if err := b.loop.Run(); err != nil {
		log.Fatal().Err(err).Msg("evloop: dispatch")
	}
}

// DispatchOnce runs a single bounded loop iteration, for polling-style
// integration.
func (b *Base) DispatchOnce() {
	if err := b.loop.RunOnce(); err != nil {
		log.Fatal().Err(err).Msg("evloop: dispatch once")
	}
}

// Exit requests that a blocking Dispatch return after the current
// iteration.
func (b *Base) Exit() {
	b.loop.Exit()
}

// Resolver returns the reactor's resolver, creating it on first use. Safe
// for concurrent callers.
func (b *Base) Resolver() *resolver.Resolver {
	b.dnsMu.Lock()
	defer b.dnsMu.Unlock()
	if b.dns == nil {
		dns, err := resolver.New(b.loop, true)
		if err != nil {
			log.Fatal().Err(err).Msg("evloop: create resolver")
		}
		b.dns = dns
	}
	return b.dns
}

// Close releases the resolver, if created, and the loop.
func (b *Base) Close() {
	b.dnsMu.Lock()
	if b.dns != nil {
		b.dns.Close()
		b.dns = nil
	}
	b.dnsMu.Unlock()
	b.loop.Close()
}
