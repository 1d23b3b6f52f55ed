package unixio

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-domains"
)

// maxEventBatch bounds one epoll_wait call's result buffer, matching the
// teacher's FastPoller (eventloop/poller_linux.go), which uses the same
// fixed-size batch rather than growing dynamically under load.
const maxEventBatch = 256

// IOEvents is a bitmask of readiness conditions a registered fd can wait
// on, mirrored from the teacher's poller_linux.go.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

func (e IOEvents) toEpoll() uint32 {
	var v uint32
	if e&EventRead != 0 {
		v |= unix.EPOLLIN
	}
	if e&EventWrite != 0 {
		v |= unix.EPOLLOUT
	}
	v |= unix.EPOLLERR | unix.EPOLLHUP
	return v
}

// fdWaiter binds one registered file descriptor's next readiness event to
// a syscall promise and the closure that should run once it fires.
type fdWaiter struct {
	fd      int
	events  IOEvents
	promise *domains.Promise
	closure func() (any, error)
}

// timerEntry is one pending Sleep deadline, ordered by when (container/heap),
// grounded on the teacher's timerHeap in loop.go.
type timerEntry struct {
	when    time.Time
	promise *domains.Promise
	index   int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Poller is an epoll-backed domains.EventsHook: one instance per Domain.
// Registered fds deliver through epoll_wait; cross-goroutine wakeup
// (Interrupt, and timer-driven wakeups) go through an eventfd, exactly the
// split the teacher's FastPoller and wakeup_linux.go maintain.
type Poller struct {
	epfd int
	wake *wakeFd

	mu      sync.Mutex
	waiters map[int]*fdWaiter
	timers  timerHeap

	closed bool
}

// NewPoller creates and initializes one Poller. Call Close when the owning
// Domain shuts down.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("unixio: epoll_create1: %w", err)
	}
	w, err := newWakeFd()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &Poller{epfd: epfd, wake: w, waiters: make(map[int]*fdWaiter)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, w.readFD(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(w.readFD()),
	}); err != nil {
		p.Close()
		return nil, fmt.Errorf("unixio: registering wake fd: %w", err)
	}
	return p, nil
}

// register binds fd's next readiness matching events to p, resolved by
// running closure once epoll reports it.
func (p *Poller) register(fd int, events IOEvents, pr *domains.Promise, closure func() (any, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("unixio: poller closed")
	}
	if _, exists := p.waiters[fd]; exists {
		return fmt.Errorf("unixio: fd %d already registered", fd)
	}
	w := &fdWaiter{fd: fd, events: events, promise: pr, closure: closure}
	p.waiters[fd] = w
	ev := unix.EpollEvent{Events: events.toEpoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		delete(p.waiters, fd)
		return fmt.Errorf("unixio: epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (p *Poller) unregister(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.waiters[fd]; !ok {
		return
	}
	delete(p.waiters, fd)
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *Poller) addTimer(when time.Time, pr *domains.Promise) {
	p.mu.Lock()
	heap.Push(&p.timers, &timerEntry{when: when, promise: pr})
	p.mu.Unlock()
	p.Interrupt()
}

// Select implements domains.EventsHook. It blocks in epoll_wait (bounded
// by the nearest pending timer, if any) and returns a RunnableEntry for
// every fd that became ready and every timer that expired.
func (p *Poller) Select(hc *domains.HookContext) []domains.RunnableEntry {
	timeout := p.nextTimeout()
	var events [maxEventBatch]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeout)
	if err != nil && err != unix.EINTR {
		return nil
	}

	var out []domains.RunnableEntry
	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == p.wake.readFD() {
			p.wake.drain()
			continue
		}
		w, ok := p.waiters[fd]
		if !ok {
			continue
		}
		delete(p.waiters, fd)
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		out = append(out, domains.Task(w.promise, w.closure))
	}
	now := time.Now()
	for p.timers.Len() > 0 && !p.timers[0].when.After(now) {
		t := heap.Pop(&p.timers).(*timerEntry)
		out = append(out, domains.Task(t.promise, func() (any, error) { return nil, nil }))
	}
	p.mu.Unlock()
	return out
}

// nextTimeout returns the epoll_wait timeout in milliseconds: -1 (block
// indefinitely) with no pending timers, otherwise the clamped-to-zero gap
// until the nearest one, capped at 10000 ms — the spec's documented clamp-to-zero fix
// (SPEC_FULL.md REDESIGN FLAGS), rather than the original's reported
// min(1, until) bug.
func (p *Poller) nextTimeout() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timers.Len() == 0 {
		return -1
	}
	until := time.Until(p.timers[0].when)
	if until < 0 {
		until = 0
	}
	ms := until.Milliseconds()
	if ms > 10000 {
		ms = 10000
	}
	return int(ms)
}

// Interrupt implements domains.EventsHook: it forces a blocked Select to
// return early via the eventfd wake path (wakeup_linux.go), grounded
// directly on the teacher's wakeup_linux.go/submitGenericWakeup.
func (p *Poller) Interrupt() {
	p.wake.signal()
}

// Close releases the epoll fd and the wake eventfd.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wake.close()
	return unix.Close(p.epfd)
}
