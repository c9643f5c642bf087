//go:build !linux
// +build !linux

// Stub backend for unsupported platforms.

package engine

import "errors"

func newPoller() (poller, error) {
	return nil, errors.New("engine: this platform is not supported")
}
