//go:build linux
// +build linux

// Linux epoll(7) backend with an eventfd used for cross-thread wakeup.

package engine

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	// The wake descriptor is the only level-triggered, persistent entry.
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return &epollPoller{epfd: epfd, wakefd: wakefd, raw: make([]unix.EpollEvent, 128)}, nil
}

func (p *epollPoller) add(fd int, mask Mask) error {
	events := uint32(unix.EPOLLONESHOT)
	if mask&EvRead != 0 {
		events |= unix.EPOLLIN
	}
	if mask&EvWrite != 0 {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) wait(evs []pollEvent, timeoutMs int) (int, error) {
	if len(p.raw) < len(evs) {
		p.raw = make([]unix.EpollEvent, len(evs))
	}
	n, err := unix.EpollWait(p.epfd, p.raw[:len(evs)], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(p.raw[i].Fd)
		if fd == p.wakefd {
			p.drain()
			continue
		}
		var what Mask
		if p.raw[i].Events&unix.EPOLLIN != 0 {
			what |= EvRead
		}
		if p.raw[i].Events&unix.EPOLLOUT != 0 {
			what |= EvWrite
		}
		if p.raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			what |= EvRead | EvWrite
		}
		evs[out] = pollEvent{fd: fd, what: what}
		out++
	}
	return out, nil
}

func (p *epollPoller) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is already nonzero and a wakeup is pending.
	_, _ = unix.Write(p.wakefd, buf[:])
}

func (p *epollPoller) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
