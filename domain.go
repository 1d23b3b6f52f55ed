package domains

import (
	"math/rand/v2"
	"sync"
)

// Domain is one cooperative scheduler: a fixed OS-thread-backed worker that
// runs at most one task goroutine at a time, switching between tasks only
// at their own suspension points (Await, Suspend, Yield, return). Modeled
// directly on the teacher's Loop (eventloop/loop.go): a local run queue, a
// pluggable events hook in place of the teacher's FastPoller, and the same
// run→quiescent→park shape, generalized from one loop to a pool of them.
type Domain struct {
	id     int
	rt     *runtime
	state  *domainState
	rq     *runQueue
	reg    *registry
	events EventsHook

	// wakeCh is both the default no-op hook's park channel and the signal
	// any cross-domain delivery (dispatcher result, cancellation,
	// Interrupt-worthy event) sends on to break a sleeping domain out of
	// EventsHook.Select.
	wakeCh chan struct{}

	statsMu sync.Mutex
	stats   DomainStats

	doneCh chan struct{}
}

// DomainStats is a trimmed, allocation-free snapshot of one Domain's
// activity, grounded on the teacher's metrics.go Snapshot pattern but
// without its p-square latency-percentile machinery (spec.md's Non-goals
// exclude priority/preemption features, not observability, but nothing
// here asked for latency SLAs either — see SPEC_FULL.md).
type DomainStats struct {
	Ticks           uint64
	TasksRun        uint64
	PromisesOwned   int
	RunQueueLength  int
}

func newDomain(id int, rt *runtime, events EventsHook, rnd *rand.Rand) *Domain {
	d := &Domain{
		id:     id,
		rt:     rt,
		state:  newDomainState(),
		rq:     newRunQueue(rnd),
		reg:    newRegistry(),
		events: events,
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	return d
}

// Stats returns a snapshot safe to read from any goroutine.
func (d *Domain) Stats() DomainStats {
	d.statsMu.Lock()
	s := d.stats
	d.statsMu.Unlock()
	s.PromisesOwned = len(d.reg.snapshotIDs())
	s.RunQueueLength = d.rq.len()
	return s
}

// wakeIfSleeping breaks d out of a parked EventsHook.Select, if it is
// currently sleeping. Safe to call from any goroutine, any number of times.
func (d *Domain) wakeIfSleeping() {
	if d.state.TryTransition(domainSleeping, domainRunning) {
		select {
		case d.wakeCh <- struct{}{}:
		default:
		}
		d.events.Interrupt()
	}
}

// pushResume requeues p's parked task goroutine for another turn, at most
// once per suspension (see Promise.consumeParked): a parked task can have
// more than one source racing to wake it — the promise it awaited settling,
// and this task's own cancellation reaching it directly — and only the
// first one through here may actually enqueue an entryResume, since
// driveTask has no way to tell a second one that the task's goroutine
// already exited after the first. p must belong to this domain (it is
// always called either by d's own goroutine, or by a waiter callback/cancel
// path that captured d as the promise's home at suspension time).
func (d *Domain) pushResume(p *Promise) {
	if !p.consumeParked() {
		return
	}
	d.rq.push(runEntry{kind: entryResume, promise: p})
	d.wakeIfSleeping()
}

// run is the scheduler loop, started once per Domain by the runtime. It
// returns once shutdown is requested and the domain has no more runnable
// or pending work — mirroring the teacher's run/shutdown split (loop.go).
func (d *Domain) run() {
	defer close(d.doneCh)
	d.state.Store(domainRunning)
	for {
		if d.rt.shuttingDown() && d.rq.len() == 0 && d.reg.pendingCount() == 0 {
			d.state.Store(domainTerminated)
			return
		}

		if d.tick() {
			d.statsMu.Lock()
			d.stats.Ticks++
			d.statsMu.Unlock()
			continue
		}

		// Run queue empty. If we still own pending work, consult the
		// events hook; otherwise park directly on the dispatcher/cancel
		// wake channel, exactly like the teacher's idle-loop park.
		if d.reg.pendingCount() == 0 && d.rt.shuttingDown() {
			d.state.Store(domainTerminated)
			return
		}

		if !d.state.TryTransition(domainRunning, domainSleeping) {
			continue
		}

		// Re-check for work that may have been pushed in the window
		// between tick() observing the run queue empty and the CAS above
		// landing: a pusher that ran in that window saw this domain still
		// domainRunning, so its own wakeIfSleeping was a no-op (there was
		// nothing to wake yet) — without this re-check that entry would
		// sit unseen while Select blocks forever (loop.go:769-786,
		// pollFastMode's own pre-block drain at loop.go:827-840).
		if d.rq.len() > 0 {
			d.state.TryTransition(domainSleeping, domainRunning)
			continue
		}

		if d.reg.pendingCount() == 0 {
			<-d.wakeCh
			d.state.TryTransition(domainSleeping, domainRunning)
			continue
		}

		hc := &HookContext{wake: d.wakeCh}
		entries := d.events.Select(hc)
		d.state.TryTransition(domainSleeping, domainRunning)
		for _, re := range entries {
			d.rq.push(runEntry{kind: entryRunnable, promise: re.promise, runnable: re})
		}
		d.reg.scavenge()
	}
}

// tick executes exactly one run-queue entry (spec.md §4.3: C3 runs "one
// randomly-selected run-queue entry to its next suspension point" per
// scheduling decision) and reports whether it found anything to do.
func (d *Domain) tick() bool {
	e, ok := d.rq.next()
	if !ok {
		return false
	}
	switch e.kind {
	case entryStart:
		d.startTask(e.promise)
	case entryResume:
		d.resumeTask(e.promise)
	case entryRunnable:
		d.runRunnable(e.runnable)
	}
	d.statsMu.Lock()
	d.stats.TasksRun++
	d.statsMu.Unlock()
	return true
}

// runRunnable executes an events-hook-produced entry: run its closure and
// resolve the bound syscall promise with the result (spec.md §4.3: "syscall
// promise is resolved when the events hook returns a task that runs its
// on_resolve").
func (d *Domain) runRunnable(re RunnableEntry) {
	p := re.promise
	if p.cancelWasRequested() {
		p.settle(outcome{err: ErrCancelled})
		return
	}
	val, err := re.closure()
	if err != nil {
		p.settle(outcome{err: &UserFailure{Cause: err}})
	} else {
		p.settle(outcome{value: val})
	}
}

// startTask begins p's closure on a fresh goroutine and drives it to its
// first suspension point or completion.
func (d *Domain) startTask(p *Promise) {
	p.resumeCh = make(chan struct{}, 1)
	p.yieldCh = make(chan taskYield, 1)
	ctx := &Context{domain: d, self: p}
	p.runCtx = ctx

	closure := p.closure
	p.closure = nil

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(cancelUnwind); ok {
					ctx.yieldDone(outcome{err: ErrCancelled})
					return
				}
				cause := recoverToError(r)
				logTaskPanic(d.id, p.id, cause)
				ctx.yieldDone(outcome{err: &UserFailure{Cause: cause}})
				return
			}
		}()
		val, err := closure(ctx)
		if err != nil {
			ctx.yieldDone(outcome{err: &UserFailure{Cause: err}})
		} else {
			ctx.yieldDone(outcome{value: val})
		}
	}()

	d.driveTask(p)
}

// resumeTask hands control back to a previously parked task goroutine. By
// the time an entryResume reaches here, pushResume's consumeParked guard has
// already ensured this fires at most once for the park it corresponds to.
func (d *Domain) resumeTask(p *Promise) {
	p.resumeCh <- struct{}{}
	d.driveTask(p)
}

// driveTask blocks until p's goroutine either finishes or parks again. This
// blocking call is exactly the mechanism that keeps d single-threaded:
// while it's blocked here, d's scheduler goroutine runs no other code, and
// the only code running is p's own task goroutine — the two never execute
// concurrently.
func (d *Domain) driveTask(p *Promise) {
	y := <-p.yieldCh
	if !y.done {
		return
	}
	p.finishClosure(d.rt, y.res)
}

// taskYield is what a task goroutine sends back to its driving Domain.
type taskYield struct {
	done bool
	res  outcome
}
