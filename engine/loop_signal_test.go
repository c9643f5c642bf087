//go:build linux
// +build linux

package engine

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExitOnSignalStopsRun(t *testing.T) {
	l := newTestLoop(t)
	l.ExitOnSignal(syscall.SIGHUP)

	errc := make(chan error, 1)
	go func() { errc <- l.Run() }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after SIGHUP")
	}
}
