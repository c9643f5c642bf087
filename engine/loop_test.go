package engine

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := NewLoop()
	if err != nil {
		t.Skipf("loop unavailable on this platform: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// drive iterates the loop until done is signalled or the deadline passes.
func drive(t *testing.T, l *Loop, done <-chan struct{}, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		select {
		case <-done:
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("loop did not make progress before the deadline")
		}
		require.NoError(t, l.RunOnce())
	}
}

func TestPostRunsOnLoop(t *testing.T) {
	l := newTestLoop(t)

	done := make(chan struct{})
	l.Post(func() { close(done) })
	drive(t, l, done, time.Second)
}

func TestPostOrdering(t *testing.T) {
	l := newTestLoop(t)

	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { close(done) })
	drive(t, l, done, time.Second)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestExitStopsRun(t *testing.T) {
	l := newTestLoop(t)

	errc := make(chan error, 1)
	go func() { errc <- l.Run() }()
	time.Sleep(20 * time.Millisecond)
	l.Exit()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Exit")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	l := newTestLoop(t)

	started := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		close(started)
		errc <- l.Run()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, l.RunOnce(), ErrLoopRunning)
	l.Exit()
	require.NoError(t, <-errc)
}

func TestPureTimerFires(t *testing.T) {
	l := newTestLoop(t)

	done := make(chan struct{})
	var got Mask
	ev, err := l.NewEvent(-1, 0, func(fd int, what Mask) {
		got = what
		close(done)
	})
	require.NoError(t, err)
	require.NoError(t, ev.Add(&Timeval{Usec: 10_000}))
	drive(t, l, done, time.Second)
	assert.Equal(t, EvTimeout, got)
}

func TestReadEventFires(t *testing.T) {
	l := newTestLoop(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	done := make(chan struct{})
	var got Mask
	ev, err := l.NewEvent(int(r.Fd()), EvRead, func(fd int, what Mask) {
		got = what
		close(done)
	})
	require.NoError(t, err)
	require.NoError(t, ev.Add(nil))

	_, err = w.Write([]byte{1})
	require.NoError(t, err)
	drive(t, l, done, time.Second)
	assert.Equal(t, EvRead, got&EvRead)
}

func TestEventIsOneShot(t *testing.T) {
	l := newTestLoop(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fired := 0
	first := make(chan struct{})
	ev, err := l.NewEvent(int(r.Fd()), EvRead, func(fd int, what Mask) {
		fired++
		if fired == 1 {
			close(first)
		}
		var buf [8]byte
		r.Read(buf[:1])
	})
	require.NoError(t, err)
	require.NoError(t, ev.Add(nil))

	_, err = w.Write([]byte{1})
	require.NoError(t, err)
	drive(t, l, first, time.Second)

	// More data without re-arming must not fire the callback again.
	_, err = w.Write([]byte{2})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.RunOnce())
	}
	assert.Equal(t, 1, fired)

	// Re-arming picks up the still-pending data.
	require.NoError(t, ev.Add(nil))
	for i := 0; i < 20 && fired < 2; i++ {
		require.NoError(t, l.RunOnce())
	}
	assert.Equal(t, 2, fired)
}

func TestEventTimeoutWhenIdle(t *testing.T) {
	l := newTestLoop(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	done := make(chan struct{})
	var got Mask
	ev, err := l.NewEvent(int(r.Fd()), EvRead, func(fd int, what Mask) {
		got = what
		close(done)
	})
	require.NoError(t, err)
	require.NoError(t, ev.Add(&Timeval{Usec: 20_000}))
	drive(t, l, done, time.Second)
	assert.Equal(t, EvTimeout, got)
}

func TestClosedEventNeverFires(t *testing.T) {
	l := newTestLoop(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	ev, err := l.NewEvent(int(r.Fd()), EvRead, func(fd int, what Mask) {
		t.Error("callback fired after Close")
	})
	require.NoError(t, err)
	require.NoError(t, ev.Add(&Timeval{Usec: 10_000}))
	ev.Close()

	_, err = w.Write([]byte{1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.RunOnce())
	}
	assert.ErrorIs(t, ev.Add(nil), ErrEventClosed)
}
