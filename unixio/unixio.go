package unixio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-domains"
)

// Read suspends the current task until fd is readable, then performs a
// single non-blocking read into buf, returning the byte count.
func Read(ctx *domains.Context, poller *Poller, fd int, buf []byte) (int, error) {
	pr := ctx.Make(nil)
	if err := poller.register(fd, EventRead, pr, func() (any, error) {
		n, err := unix.Read(fd, buf)
		if err != nil {
			return nil, err
		}
		return n, nil
	}); err != nil {
		return 0, err
	}
	v, err := ctx.Suspend(pr)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// Write suspends the current task until fd is writable, then performs a
// single non-blocking write of buf, returning the byte count.
func Write(ctx *domains.Context, poller *Poller, fd int, buf []byte) (int, error) {
	pr := ctx.Make(nil)
	if err := poller.register(fd, EventWrite, pr, func() (any, error) {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return nil, err
		}
		return n, nil
	}); err != nil {
		return 0, err
	}
	v, err := ctx.Suspend(pr)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// Accept suspends the current task until listenFd reports a pending
// connection, then accepts it non-blockingly, returning the new fd.
func Accept(ctx *domains.Context, poller *Poller, listenFd int) (int, error) {
	pr := ctx.Make(nil)
	if err := poller.register(listenFd, EventRead, pr, func() (any, error) {
		nfd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return nil, err
		}
		return nfd, nil
	}); err != nil {
		return 0, err
	}
	v, err := ctx.Suspend(pr)
	if err != nil {
		return 0, err
	}
	nfd, _ := v.(int)
	return nfd, nil
}

// Connect issues a non-blocking connect on fd to addr, suspending the
// current task until the socket becomes writable, then checking SO_ERROR
// to determine whether the connection actually succeeded.
func Connect(ctx *domains.Context, poller *Poller, fd int, addr unix.Sockaddr) error {
	err := unix.Connect(fd, addr)
	if err != nil && err != unix.EINPROGRESS {
		return fmt.Errorf("unixio: connect: %w", err)
	}
	if err == nil {
		return nil
	}

	pr := ctx.Make(nil)
	if err := poller.register(fd, EventWrite, pr, func() (any, error) {
		errno, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if serr != nil {
			return nil, serr
		}
		if errno != 0 {
			return nil, unix.Errno(errno)
		}
		return nil, nil
	}); err != nil {
		return err
	}
	_, err = ctx.Suspend(pr)
	return err
}

// Sleep suspends the current task for at least d, via the owning domain's
// Poller timer heap rather than a blocking time.Sleep — so the domain
// keeps servicing other tasks while this one waits.
func Sleep(ctx *domains.Context, poller *Poller, d time.Duration) error {
	pr := ctx.Make(nil)
	poller.addTimer(time.Now().Add(d), pr)
	_, err := ctx.Suspend(pr)
	return err
}

// Close unregisters fd from poller (if it had a pending wait registered)
// and closes it.
func Close(poller *Poller, fd int) error {
	poller.unregister(fd)
	return unix.Close(fd)
}
