package domains

import (
	"fmt"
	"sync"
)

// Context is the capability a running task uses to create more work, wait
// on it, and cooperate with the scheduler. It is bound to exactly one
// Domain (the one currently executing the task) and exactly one Promise
// (the task's own). There is no analogue of this in the teacher, which
// never needed a per-task capability object — it is this repo's
// generalization of the teacher's Loop-level Submit/ScheduleMicrotask
// methods down to task scope.
type Context struct {
	domain *Domain
	self   *Promise
}

// cancelUnwind is panicked by a Context's suspension-point checks when its
// own task has been cancelled, and recovered only by the goroutine wrapper
// in Domain.startTask. It is never observed by user code.
type cancelUnwind struct{}

func (c *Context) checkSelfCancel() {
	if c.self.cancelWasRequested() {
		panic(cancelUnwind{})
	}
}

// yieldDone is called exactly once by a task goroutine as it's about to
// exit, whether it returned normally, returned an error, or panicked.
func (c *Context) yieldDone(res outcome) {
	c.self.yieldCh <- taskYield{done: true, res: res}
}

// parkOn suspends the current task goroutine until p leaves Pending (or
// until this task itself is cancelled out from under the wait), then
// returns p's outcome. It must only be called from the task's own
// goroutine, never from the Domain's scheduler goroutine.
func (c *Context) parkOn(p *Promise) outcome {
	c.self.markParked(c.domain)
	p.addWaiter(func(outcome) {
		c.domain.pushResume(c.self)
	})
	c.self.yieldCh <- taskYield{done: false}
	<-c.self.resumeCh
	c.checkSelfCancel()
	_, res := p.snapshotState()
	return res
}

// Call dispatches fn as a parallel task: the dispatcher assigns it to a
// Domain other than the current one (spec.md invariant 4), and it begins
// running there immediately (or as soon as that domain gets to it) without
// waiting for the caller to suspend. Returns a Promise the caller (or any
// other task holding it) may later Await.
func (c *Context) Call(fn func(*Context) (any, error)) (*Promise, error) {
	target, err := c.domain.rt.pickWorker(c.domain.id)
	if err != nil {
		return nil, err
	}
	p := newPromise(c.domain.rt.nextID(), TaskKind, target.id, c.self)
	p.closure = fn
	c.self.addChild(p)
	target.reg.add(p)
	target.rq.push(runEntry{kind: entryStart, promise: p})
	target.wakeIfSleeping()
	return p, nil
}

// CallCC dispatches fn as a concurrent task bound to the current domain:
// it never runs in parallel with the calling task (this domain only ever
// runs one goroutine at a time), but it is an independent task the caller
// does not have to finish before moving on, and may interleave with other
// work on this domain at its own suspension points.
func (c *Context) CallCC(fn func(*Context) (any, error)) (*Promise, error) {
	p := newPromise(c.domain.rt.nextID(), TaskKind, c.domain.id, c.self)
	p.closure = fn
	c.self.addChild(p)
	c.domain.reg.add(p)
	c.domain.rq.push(runEntry{kind: entryStart, promise: p})
	return p, nil
}

// Make registers a syscall promise: a placeholder resolved by code outside
// the scheduler entirely, typically an EventsHook implementation such as
// unixio's epoll-backed one. onResolve is retained on the promise for data-
// model completeness (spec.md §3); the actual resolution of promises
// created this way happens via Task, usually wrapping the very same
// closure given here.
func (c *Context) Make(onResolve func() (any, error)) *Promise {
	p := newPromise(c.domain.rt.nextID(), SyscallKind, c.domain.id, c.self)
	p.onResolve = onResolve
	c.self.addChild(p)
	c.domain.reg.add(p)
	return p
}

// Suspend parks the current task until p (a syscall promise this task's
// domain owns) resolves. Unlike Await, Suspend requires p to be owned by
// the calling domain — it exists to make a syscall promise's single
// intended caller explicit, and returns ErrForeignPromise otherwise.
func (c *Context) Suspend(p *Promise) (any, error) {
	if p.ownerDomain != c.domain.id {
		return nil, ErrForeignPromise
	}
	return c.Await(p)
}

// Await suspends the current task until p leaves Pending, then returns its
// outcome. p may be owned by any domain. A given Promise may be awaited at
// most once across its whole lifetime (spec.md invariant 2); a second
// Await (from anywhere) returns ErrAlreadyConsumed.
func (c *Context) Await(p *Promise) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("domains: Await called with a nil promise")
	}
	c.checkSelfCancel()

	p.mu.Lock()
	if p.consumed {
		p.mu.Unlock()
		return nil, ErrAlreadyConsumed
	}
	if p.state == Pending {
		p.mu.Unlock()
		res := c.parkOn(p)
		p.mu.Lock()
		p.consumed = true
		p.mu.Unlock()
		return res.value, res.err
	}
	p.consumed = true
	res := p.res
	p.mu.Unlock()
	return res.value, res.err
}

// AwaitAll suspends until every promise in ps has settled, returning their
// values in order. If any fails or is cancelled, AwaitAll still waits for
// the rest (so their single-consumption invariant is respected) but
// returns the first such error.
func (c *Context) AwaitAll(ps []*Promise) ([]any, error) {
	if len(ps) == 0 {
		return nil, ErrEmptyAwait
	}
	values := make([]any, len(ps))
	var firstErr error
	for i, p := range ps {
		v, err := c.Await(p)
		values[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return values, firstErr
}

// AwaitFirst suspends until the first of ps settles, cancels the rest (the
// "losers", per SPEC_FULL.md's supplemented AwaitFirst semantics), awaits
// each of them too (so they are fully drained and their single-consumption
// invariant holds), and returns the winner's outcome.
//
// Registers a waiter directly on every promise in ps rather than spawning a
// CallCC racer per promise: a racer's Await would need to report back to
// this task over some channel, and a raw channel receive here would block
// this task's goroutine without handing control back through yieldCh, which
// is exactly the one thing that must never happen — the domain's scheduler
// goroutine is parked in driveTask waiting on this very task's yieldCh, so
// nothing else on this domain (including the racers needed to ever send on
// that channel) could make progress. Suspending via the same parkOn-style
// yieldCh/resumeCh handshake used everywhere else avoids that deadlock.
func (c *Context) AwaitFirst(ps []*Promise) (any, error) {
	if len(ps) == 0 {
		return nil, ErrEmptyAwait
	}
	c.checkSelfCancel()

	// Mark parked before registering any waiter: addWaiter invokes its
	// callback synchronously for a promise that has already settled, and
	// that callback must find consumeParked ready to succeed — otherwise
	// an already-settled candidate's resume would be dropped before this
	// task ever gets a chance to actually park on resumeCh.
	c.self.markParked(c.domain)

	var winMu sync.Mutex
	winnerIdx := -1
	for i, p := range ps {
		i := i
		p.addWaiter(func(outcome) {
			winMu.Lock()
			first := winnerIdx < 0
			if first {
				winnerIdx = i
			}
			winMu.Unlock()
			if first {
				c.domain.pushResume(c.self)
			}
		})
	}

	c.self.yieldCh <- taskYield{done: false}
	<-c.self.resumeCh
	c.checkSelfCancel()

	winMu.Lock()
	idx := winnerIdx
	winMu.Unlock()

	for _, p := range ps {
		c.domain.rt.cancel(p)
	}

	var winner outcome
	for i, p := range ps {
		v, err := c.Await(p)
		if i == idx {
			winner = outcome{value: v, err: err}
		}
	}
	return winner.value, winner.err
}

// Cancel requests cancellation of p and, recursively, every pending
// descendant of p — strictly top-down (spec.md §4.5 / C5). A syscall
// promise cancelled this way settles immediately with ErrCancelled; a task
// promise observes the request at its next suspension point.
func (c *Context) Cancel(p *Promise) {
	c.domain.rt.cancel(p)
}

// Yield voluntarily gives up this domain's single thread of execution,
// re-entering the run queue at a new random position — a way for a long-
// running, CPU-bound task to let its siblings make progress without
// actually waiting on anything.
func (c *Context) Yield() {
	c.checkSelfCancel()
	c.self.markParked(c.domain)
	c.domain.pushResume(c.self)
	c.self.yieldCh <- taskYield{done: false}
	<-c.self.resumeCh
	c.checkSelfCancel()
}
