package domains

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// runtime is the process-wide state shared by every Domain in one Run
// invocation: the domain pool, the id allocator, and the PRNG used for
// dispatcher domain selection. There is no analogue of this in the
// teacher, which only ever had one Loop; it exists here purely to
// generalize the teacher's single-domain design to a fixed pool of them.
//
// rnd backs only pickWorker, which is called concurrently from whichever
// domain's task goroutine happens to invoke Call at the time — unlike a
// Domain's own runQueue.rnd (touched only by that domain's single scheduler
// goroutine), this one has no natural owner goroutine, so it is guarded by
// rndMu. math/rand/v2's Rand is not safe for concurrent use on its own.
type runtime struct {
	domains []*Domain
	rndMu   sync.Mutex
	rnd     *rand.Rand
	idSeq   atomic.Uint64
	down    atomic.Bool
}

func (rt *runtime) dispatchRandN(n int) int {
	rt.rndMu.Lock()
	defer rt.rndMu.Unlock()
	return rt.rnd.IntN(n)
}

func (rt *runtime) nextID() uint64 {
	return rt.idSeq.Add(1)
}

func (rt *runtime) shuttingDown() bool {
	return rt.down.Load()
}

func (rt *runtime) domainByID(id int) *Domain {
	if id < 0 || id >= len(rt.domains) {
		return nil
	}
	return rt.domains[id]
}

// pickWorker chooses a Domain other than excludeID, uniformly at random,
// for a Call dispatch (spec.md invariant 4 / §9's randomized-selection
// design note). Returns ErrEmptyDomainPool when no such domain exists.
func (rt *runtime) pickWorker(excludeID int) (*Domain, error) {
	n := len(rt.domains)
	if n <= 1 {
		return nil, ErrEmptyDomainPool
	}
	idx := rt.dispatchRandN(n - 1)
	if idx >= excludeID {
		idx++
	}
	return rt.domains[idx], nil
}

// cancel walks the cancellation tree rooted at p top-down (spec.md C5 /
// §4.5): mark p cancellation-requested, force-settle it immediately if it
// is a pending syscall promise (or wake its parked task goroutine if it is
// a pending task promise), then recurse into its children regardless of
// p's own kind or state, since a promise already consumed may still have
// pending children awaiting cleanup.
func (rt *runtime) cancel(p *Promise) {
	if p == nil {
		return
	}
	alreadyRequested := p.cancelWasRequested()
	p.requestCancel()

	st, _ := p.snapshotState()
	if !alreadyRequested && st == Pending {
		switch p.kind {
		case SyscallKind:
			if p.settle(outcome{err: ErrCancelled}) {
				logCancelled(p.ownerDomain, p.id)
			}
			if dom := rt.domainByID(p.ownerDomain); dom != nil {
				dom.events.Interrupt()
				dom.wakeIfSleeping()
			}
		case TaskKind:
			if dom := p.snapshotParkedDomain(); dom != nil {
				dom.pushResume(p)
			}
		}
	}

	p.mu.Lock()
	children := make([]*Promise, 0, len(p.children))
	for _, c := range p.children {
		children = append(children, c)
	}
	p.mu.Unlock()

	for _, c := range children {
		rt.cancel(c)
	}
}

var runActive atomic.Bool

// Run starts a fixed pool of domains and runs body as the root task on the
// main domain (domain 0), blocking until it (and, per spec.md invariant 3,
// every descendant it spawned) has fully settled. It returns body's
// outcome: the resolved value, or an error (ErrCancelled, a *UserFailure,
// or one of the precondition sentinels).
//
// Exactly one Run may be active per process at a time; see spec.md §6.
func Run(body func(*Context) (any, error), opts ...Option) (any, error) {
	if !runActive.CompareAndSwap(false, true) {
		return nil, ErrRunAlreadyActive
	}
	defer runActive.Store(false)

	cfg := config{
		numDomains: defaultDomainCount(),
		rnd:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		newEvents:  func() EventsHook { return NoopEventsHook{} },
	}
	for _, o := range opts {
		o(&cfg)
	}

	rt := &runtime{rnd: cfg.rnd}
	total := cfg.numDomains + 1
	rt.domains = make([]*Domain, total)
	for i := 0; i < total; i++ {
		// Each domain's run queue gets its own Rand, derived (not shared)
		// from cfg.rnd: runQueue.next() is only ever called by that one
		// domain's own scheduler goroutine, but sharing a single *rand.Rand
		// across N concurrently-running domains would race on its internal
		// state even though each runQueue's own mutex is uncontended.
		domRnd := rand.New(rand.NewPCG(cfg.rnd.Uint64(), cfg.rnd.Uint64()))
		rt.domains[i] = newDomain(i, rt, cfg.newEvents(), domRnd)
	}

	var wg sync.WaitGroup
	for _, d := range rt.domains[1:] {
		wg.Add(1)
		go func(d *Domain) {
			defer wg.Done()
			logDomainStarted(d.id)
			d.run()
			logDomainStopped(d.id)
		}(d)
	}

	main := rt.domains[0]
	root := newPromise(rt.nextID(), TaskKind, main.id, nil)
	root.closure = body
	main.reg.add(root)
	main.rq.push(runEntry{kind: entryStart, promise: root})

	logDomainStarted(main.id)
	main.runUntilSettled(root)
	logDomainStopped(main.id)

	rt.down.Store(true)
	for _, d := range rt.domains[1:] {
		d.wakeIfSleeping()
	}
	wg.Wait()

	_, res := root.snapshotState()
	return res.value, res.err
}

// runUntilSettled drives the main domain's scheduler loop exactly like
// run(), but returns as soon as root has left Pending, rather than only on
// shutdown — the root task is the thing that defines when this Run call is
// done, so the main domain does not wait to be told to stop separately.
func (d *Domain) runUntilSettled(root *Promise) {
	d.state.Store(domainRunning)
	for {
		if st, _ := root.snapshotState(); st != Pending {
			return
		}

		if d.tick() {
			d.statsMu.Lock()
			d.stats.Ticks++
			d.statsMu.Unlock()
			continue
		}

		if !d.state.TryTransition(domainRunning, domainSleeping) {
			continue
		}

		// See the identical re-check in Domain.run: without it, work
		// pushed in the window between tick()'s empty read and the CAS
		// above would be stranded with no one left to signal wakeCh.
		if d.rq.len() > 0 {
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
