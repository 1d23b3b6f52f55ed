// Package unixio is an example consumer of domains.EventsHook: an
// epoll-backed implementation supplying non-blocking Read, Write, Accept,
// Connect, Sleep, and Close as syscall-promise-returning operations.
//
// It is built the way spec.md frames it — deliberately out of scope for
// the core scheduler, but a worked demonstration that the events-hook
// boundary is enough to build a real I/O layer on top of, in the same
// spirit as the teacher's own FastPoller (eventloop/poller_linux.go).
//
// Unix (specifically Linux, via golang.org/x/sys/unix) only; there is no
// darwin or windows build of this package, matching the teacher's platform
// split but trimmed to the one platform this spec actually asks for.
package unixio
