// Package domains implements a composable concurrency runtime: a fixed
// pool of cooperatively-scheduled domains, each an independent OS-thread-
// backed worker running at most one task at a time, switching only at
// explicit suspension points.
//
// # Architecture
//
// A Run call spawns N+1 domains (the main domain plus a configurable
// worker pool) and runs a root task on the main domain. Tasks come in two
// flavors: CallCC, which stays on the calling domain and interleaves with
// its siblings there, and Call, which the dispatcher assigns to a
// different domain entirely so it runs in true parallel. Both return a
// Promise, awaited with Await (or Suspend, for a syscall promise's own
// domain). A task suspends cooperatively — at Await, Suspend, Yield, or its
// own return — and nowhere else; there is no preemption, no work stealing,
// and no priority between tasks, only randomized tie-breaking when more
// than one is runnable (see runqueue.go).
//
// I/O is deliberately outside this package's core: a Domain consults its
// EventsHook only when its run queue is empty but it still owns pending
// work, and the default NoopEventsHook never produces anything on its own.
// The unixio package is this runtime's epoll-backed events hook
// implementation, built as an example consumer of that boundary.
//
// # Cancellation
//
// Cancel walks a promise's descendant tree top-down: a pending syscall
// promise settles immediately with ErrCancelled, a running task observes
// the request at its next suspension point and unwinds, and a parent task
// whose closure has already returned still will not settle until every
// child it spawned has drained — cancelled or otherwise.
//
// # Logging
//
// Domain lifecycle events, recovered panics, and cancellations are logged
// through a package-level structured logger (see SetLogger), backed by
// github.com/joeycumines/logiface and github.com/joeycumines/stumpy.
package domains
