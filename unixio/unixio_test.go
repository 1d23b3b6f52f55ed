//go:build linux

package unixio

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-domains"
)

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func TestReadWriteRoundTrip(t *testing.T) {
	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	a, b := newSocketPair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	result, err := domains.Run(func(ctx *domains.Context) (any, error) {
		n, err := Write(ctx, poller, a, []byte("ping"))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 16)
		got, err := Read(ctx, poller, b, buf)
		if err != nil {
			return nil, err
		}
		assert.Equal(t, len("ping"), n)
		return string(buf[:got]), nil
	}, domains.WithEvents(func() domains.EventsHook { return poller }))
	require.NoError(t, err)
	assert.Equal(t, "ping", result)
}

func TestSleepWaitsAtLeastDuration(t *testing.T) {
	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	start := time.Now()
	_, err = domains.Run(func(ctx *domains.Context) (any, error) {
		return nil, Sleep(ctx, poller, 30*time.Millisecond)
	}, domains.WithEvents(func() domains.EventsHook { return poller }))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// TestConcurrentSleepersOverlap is spec.md §8 scenario 1: two CallCC tasks
// each sleeping 300ms must overlap rather than serialize, so total elapsed
// time stays under their combined duration.
func TestConcurrentSleepersOverlap(t *testing.T) {
	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	const sleepFor = 300 * time.Millisecond
	start := time.Now()
	_, err = domains.Run(func(ctx *domains.Context) (any, error) {
		var promises []*domains.Promise
		for i := 0; i < 2; i++ {
			p, err := ctx.CallCC(func(cc *domains.Context) (any, error) {
				return nil, Sleep(cc, poller, sleepFor)
			})
			require.NoError(t, err)
			promises = append(promises, p)
		}
		return ctx.AwaitAll(promises)
	}, domains.WithEvents(func() domains.EventsHook { return poller }))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*sleepFor)
}

// TestCancelInterruptsSleepingIO is spec.md §8 scenario 3: cancelling a
// Call task parked on a long Sleep must interrupt the owner domain's
// epoll_wait promptly and settle the promise Cancelled, well before the
// sleep would have elapsed on its own.
func TestCancelInterruptsSleepingIO(t *testing.T) {
	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	start := time.Now()
	_, err = domains.Run(func(ctx *domains.Context) (any, error) {
		p, err := ctx.Call(func(cc *domains.Context) (any, error) {
			return nil, Sleep(cc, poller, 10*time.Second)
		})
		require.NoError(t, err)

		go func() {
			time.Sleep(100 * time.Millisecond)
			ctx.Cancel(p)
		}()

		_, err = ctx.Await(p)
		assert.ErrorIs(t, err, domains.ErrCancelled)
		return nil, nil
	}, domains.WithDomains(1), domains.WithEvents(func() domains.EventsHook { return poller }))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAcceptConnectRoundTrip(t *testing.T) {
	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	listenFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(listenFd)
	require.NoError(t, unix.Bind(listenFd, &unix.SockaddrInet4{Port: 0}))
	require.NoError(t, unix.Listen(listenFd, 1))

	sa, err := unix.Getsockname(listenFd)
	require.NoError(t, err)
	addr := sa.(*unix.SockaddrInet4)

	result, err := domains.Run(func(ctx *domains.Context) (any, error) {
		clientFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return nil, err
		}
		defer Close(poller, clientFd)

		acceptP, err := ctx.CallCC(func(cc *domains.Context) (any, error) {
			return Accept(cc, poller, listenFd)
		})
		if err != nil {
			return nil, err
		}

		if err := Connect(ctx, poller, clientFd, &unix.SockaddrInet4{Port: addr.Port, Addr: [4]byte{127, 0, 0, 1}}); err != nil {
			return nil, err
		}

		v, err := ctx.Await(acceptP)
		if err != nil {
			return nil, err
		}
		serverFd := v.(int)
		defer Close(poller, serverFd)
		return "connected", nil
	}, domains.WithEvents(func() domains.EventsHook { return poller }))
	require.NoError(t, err)
	assert.Equal(t, "connected", result)
}
