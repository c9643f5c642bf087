package engine

import (
	"container/heap"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// RunOnce never sleeps longer than this, so polling-style callers regain
// control promptly even when nothing is pending.
const onceWaitMs = 100

var (
	// ErrLoopRunning is returned when Run or RunOnce is entered while
	// another goroutine is already driving the loop.
	ErrLoopRunning = errors.New("engine: loop is already running")

	// ErrLoopClosed is returned for operations on a closed loop.
	ErrLoopClosed = errors.New("engine: loop is closed")
)

// Loop is a single-threaded event loop. One goroutine at a time drives it
// through Run or RunOnce; registrations, posted jobs, and timers all fire on
// that goroutine.
type Loop struct {
	p poller

	mu     sync.Mutex
	jobs   *queue.Queue // of func()
	fdEvs  map[int]*Event
	timers timerHeap

	exit    atomic.Bool
	running atomic.Bool
	closed  atomic.Bool

	sigMu   sync.Mutex
	sigCh   chan os.Signal
	sigDone chan struct{}

	buf []pollEvent
}

// NewLoop creates a loop with cross-thread wakeup enabled.
func NewLoop() (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Loop{
		p:     p,
		jobs:  queue.New(),
		fdEvs: make(map[int]*Event),
		buf:   make([]pollEvent, 128),
	}, nil
}

// Run iterates the loop until Exit is requested. Only one goroutine may run
// the loop at a time.
func (l *Loop) Run() error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)
	defer l.exit.Store(false)
	for !l.exit.Load() {
		if err := l.iterate(-1); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce performs exactly one poll-and-dispatch iteration. The wait is
// bounded so the caller is never blocked indefinitely.
func (l *Loop) RunOnce() error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)
	return l.iterate(onceWaitMs)
}

// Exit requests that Run return after the current iteration.
func (l *Loop) Exit() {
	l.exit.Store(true)
	l.p.wake()
}

// ExitOnSignal arranges for receipt of sig to request loop exit, the same
// way Exit does. It may be called once per signal of interest.
func (l *Loop) ExitOnSignal(sig os.Signal) {
	l.sigMu.Lock()
	defer l.sigMu.Unlock()
	if l.sigCh == nil {
		l.sigCh = make(chan os.Signal, 4)
		l.sigDone = make(chan struct{})
		go func(ch chan os.Signal, done chan struct{}) {
			for {
				select {
				case <-done:
					return
				case <-ch:
					l.Exit()
				}
			}
		}(l.sigCh, l.sigDone)
	}
	signal.Notify(l.sigCh, sig)
}

// Post enqueues fn for execution on the loop goroutine, waking a blocked
// wait. Safe to call from any goroutine; posts to a closed loop are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.jobs.Add(fn)
	l.mu.Unlock()
	l.p.wake()
}

// Close releases the poll backend and stops signal forwarding. The loop must
// not be running.
func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.sigMu.Lock()
	if l.sigCh != nil {
		signal.Stop(l.sigCh)
		close(l.sigDone)
	}
	l.sigMu.Unlock()
	return l.p.close()
}

// iterate runs one wait/dispatch cycle. capMs bounds the wait; -1 means the
// wait is limited only by the earliest pending deadline.
func (l *Loop) iterate(capMs int) error {
	n, err := l.p.wait(l.buf, l.pollTimeout(capMs))
	if err != nil {
		return err
	}
	l.fireReady(l.buf[:n])
	l.fireExpired()
	l.runJobs()
	return nil
}

func (l *Loop) pollTimeout(capMs int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jobs.Length() > 0 {
		return 0
	}
	t := capMs
	if len(l.timers) > 0 {
		ms := 0
		if d := time.Until(l.timers[0].deadline); d > 0 {
			ms = int(d.Milliseconds()) + 1
		}
		if t < 0 || ms < t {
			t = ms
		}
	}
	return t
}

type firing struct {
	ev   *Event
	what Mask
}

func (l *Loop) fireReady(ready []pollEvent) {
	if len(ready) == 0 {
		return
	}
	var runs []firing
	l.mu.Lock()
	for _, pe := range ready {
		ev := l.fdEvs[pe.fd]
		if ev == nil || !ev.armed || ev.closed {
			continue
		}
		what := pe.what & ev.mask
		if what == 0 {
			what = ev.mask & (EvRead | EvWrite)
		}
		l.disarmLocked(ev)
		runs = append(runs, firing{ev: ev, what: what})
	}
	l.mu.Unlock()
	for _, f := range runs {
		l.invoke(f.ev, f.what)
	}
}

func (l *Loop) fireExpired() {
	now := time.Now()
	var runs []*Event
	l.mu.Lock()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		te := heap.Pop(&l.timers).(*timerEntry)
		ev := te.ev
		if ev == nil || !ev.armed || ev.closed || ev.timer != te {
			continue
		}
		ev.timer = nil
		l.disarmLocked(ev)
		runs = append(runs, ev)
	}
	l.mu.Unlock()
	for _, ev := range runs {
		l.invoke(ev, EvTimeout)
	}
}

// runJobs drains the jobs that were pending when the cycle reached it; jobs
// posted by jobs run on the next iteration.
func (l *Loop) runJobs() {
	l.mu.Lock()
	n := l.jobs.Length()
	l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.mu.Lock()
		if l.jobs.Length() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.jobs.Remove().(func())
		l.mu.Unlock()
		fn()
	}
}

// invoke delivers one callback, skipping registrations closed since they
// were collected.
func (l *Loop) invoke(ev *Event, what Mask) {
	l.mu.Lock()
	closed := ev.closed
	l.mu.Unlock()
	if closed {
		return
	}
	ev.cb(ev.fd, what)
}

// disarmLocked removes ev from the poll backend and cancels its deadline.
// Callers hold l.mu.
func (l *Loop) disarmLocked(ev *Event) {
	ev.armed = false
	if ev.inPoll {
		_ = l.p.del(ev.fd)
		delete(l.fdEvs, ev.fd)
		ev.inPoll = false
	}
	if ev.timer != nil {
		if ev.timer.index >= 0 {
			heap.Remove(&l.timers, ev.timer.index)
		}
		ev.timer.ev = nil
		ev.timer = nil
	}
}
