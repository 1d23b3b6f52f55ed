package domains

import (
	"sync"
	"sync/atomic"
)

// PromiseState is the lifecycle state of a [Promise]. A promise starts
// Pending and leaves that state at most once (spec invariant 1), landing in
// exactly one of Resolved, Failed, or Cancelled. Await does not change the
// state afterwards: consumption is tracked by a separate flag, so a promise
// that has been awaited still reports its terminal state.
//
// Modeled on the teacher's PromiseState/LoopState: a small iota enum with a
// String method, rather than a richer sum type, matching Go idiom.
type PromiseState int32

const (
	// Pending is the initial state: the task hasn't finished, or the
	// syscall promise hasn't been resolved by external code yet.
	Pending PromiseState = iota
	// Resolved means the closure returned a value (or the syscall's
	// on_resolve produced one) without error.
	Resolved
	// Failed means the closure returned an error, or panicked.
	Failed
	// Cancelled is the terminal state forced by the cancellation engine.
	Cancelled
	// Consumed names the awaited-once condition. No code path stores it
	// as a promise's state; Await records consumption in a separate flag,
	// and awaiting again fails with ErrAlreadyConsumed.
	Consumed
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Consumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// PromiseKind distinguishes task promises (backed by a user closure the
// scheduler runs) from syscall promises (resolved by external code via the
// events hook).
type PromiseKind int

const (
	// TaskKind promises are created by Call/CallCC and run a user closure.
	TaskKind PromiseKind = iota
	// SyscallKind promises are created by Make and resolved externally.
	SyscallKind
)

func (k PromiseKind) String() string {
	if k == SyscallKind {
		return "syscall"
	}
	return "task"
}

// outcome is the settled value of a promise: exactly one of (value, nil) or
// (nil, err), where err may be ErrCancelled or a *UserFailure.
type outcome struct {
	value any
	err   error
}

// Promise is an awaitable handle to an eventual outcome: a task dispatched
// via Call/CallCC, or a syscall registered via Make. It carries identity
// (a process-wide unique id, see UID) and is the unit the cancellation
// engine (C5) walks.
//
// Promise is safe for concurrent reads of its identity (UID, IsPending) from
// any goroutine; mutation of its internal state is always performed by its
// owner domain (see ownerDomain), the one exception being the sanctioned
// cross-domain delivery path through Domain.pushResume/runQueue.push, which
// only ever touch mutex-guarded fields.
type Promise struct {
	id   uint64
	kind PromiseKind

	mu    sync.Mutex
	state PromiseState
	res   outcome

	// ownerDomain is the id of the Domain responsible for mutating this
	// promise's state. For a CallCC promise this is always the domain
	// that created it (it never leaves that domain). For a Call promise
	// it is the worker domain chosen by the dispatcher at submission time
	// (spec.md invariant 4) — note that *awaiting* a Call promise from a
	// different domain is still legal; only direct mutation (resolve,
	// Suspend) is restricted to the owner, via the run queue/interrupt path
	// (see domain.go).
	ownerDomain int

	parent   *Promise
	children map[uint64]*Promise

	// pendingChildren counts children not yet in a terminal state. A
	// parent whose closure has returned must wait for this to reach zero
	// before it itself may settle (spec invariant 3).
	pendingChildren int

	// deferred holds the closure's own result once it has returned, when
	// finalization had to wait on pendingChildren. Applied once the last
	// child drains.
	deferred    *outcome
	closureDone bool

	cancelRequested atomic.Bool
	consumed        bool

	// waiters are invoked (by whichever domain resolves this promise)
	// once the promise leaves Pending. Each one is responsible for
	// waking its own awaiting task on its own domain — see Context.Await.
	waiters []func(outcome)

	// onResolve is the nullary closure supplied to Make for a Syscall
	// promise; kept for data-model completeness (spec.md §3) though the
	// actual resolution path in this implementation runs via Task's
	// closure argument (see events.go), which external callers typically
	// construct from the very same closure they passed to Make.
	onResolve func() (any, error)

	// closure is the user-supplied task body for TaskKind promises. Nil
	// once the task has started running (ownership moves to the
	// goroutine driving it).
	closure func(*Context) (any, error)

	// resumeCh hands control back to a parked task goroutine. Receiving
	// from it is how Await/Suspend/Yield block; sending to it is how the
	// scheduler resumes them. Created once, when Domain.startTask starts
	// the task.
	resumeCh chan struct{}

	// yieldCh is how a task goroutine hands control back to the driving
	// Domain: either a final outcome (done) or a request to park (not
	// done, meaning the task registered its own wake path already).
	yieldCh chan taskYield

	// runCtx is the Context bound to this promise's task goroutine, set by
	// Domain.startTask.
	runCtx *Context

	// parked and parkedDomain are set together, under mu, while this
	// task's goroutine is blocked on resumeCh: parkedDomain names the
	// Domain responsible for requeuing it, parked guards against the more
	// than one wake source that can race to do so — e.g. the promise this
	// task awaited settling (firing a waiter) at the same moment this task
	// is itself cancelled (runtime.cancel's own direct requeue). Exactly
	// one of them must actually requeue the task; see markParked and
	// consumeParked.
	parked       bool
	parkedDomain *Domain
}

// markParked records that p's task goroutine is about to block on resumeCh,
// parked on domain d. Must be called by p's own task goroutine, immediately
// before it yields control back to d via yieldCh.
func (p *Promise) markParked(d *Domain) {
	p.mu.Lock()
	p.parked = true
	p.parkedDomain = d
	p.mu.Unlock()
}

// consumeParked clears p's parked state and reports whether this call is the
// one that gets to act on it. Every source that might wake a parked task
// (an awaited promise settling, cancellation reaching the task directly,
// Yield's own immediate self-requeue) calls this before requeuing; only the
// first one racing to do so for a given park sees true, so a task is resumed
// at most once per suspension.
func (p *Promise) consumeParked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.parked {
		return false
	}
	p.parked = false
	p.parkedDomain = nil
	return true
}

// snapshotParkedDomain reports the Domain p's task goroutine is currently
// parked on, or nil if it isn't parked. Safe to call from any goroutine.
func (p *Promise) snapshotParkedDomain() *Domain {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.parked {
		return nil
	}
	return p.parkedDomain
}

// newPromise allocates a promise with the given kind and parent, owned by
// ownerDomain. It does not register it anywhere; callers insert it into the
// appropriate registry and run queue / dispatcher.
func newPromise(id uint64, kind PromiseKind, ownerDomain int, parent *Promise) *Promise {
	p := &Promise{
		id:          id,
		kind:        kind,
		state:       Pending,
		ownerDomain: ownerDomain,
		parent:      parent,
	}
	return p
}

// UID returns p's stable, process-wide-unique identifier.
func UID(p *Promise) uint64 {
	return p.id
}

// IsPending reports whether p is still in the Pending state.
func IsPending(p *Promise) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Pending
}

// snapshotState reads state and outcome atomically together.
func (p *Promise) snapshotState() (PromiseState, outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.res
}

// addChild registers c as a pending child of p. Must be called before c is
// published anywhere a cancellation walk could reach it concurrently, i.e.
// while p is the currently-executing task creating c.
func (p *Promise) addChild(c *Promise) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.children == nil {
		p.children = make(map[uint64]*Promise)
	}
	p.children[c.id] = c
	p.pendingChildren++
}

// addWaiter registers fn to run once p leaves Pending. If p has already
// settled, fn runs immediately (synchronously, by the calling goroutine).
func (p *Promise) addWaiter(fn func(outcome)) {
	p.mu.Lock()
	if p.state != Pending {
		res := p.res
		p.mu.Unlock()
		fn(res)
		return
	}
	p.waiters = append(p.waiters, fn)
	p.mu.Unlock()
}

// settle transitions p out of Pending exactly once, recording res and
// notifying waiters. Returns false if p had already settled. Must be called
// only by p's owner domain (or, for the deferred-children path, by whichever
// goroutine drains the last pending child — see onChildSettled).
func (p *Promise) settle(res outcome) bool {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return false
	}
	switch {
	case res.err == ErrCancelled:
		p.state = Cancelled
	case res.err != nil:
		p.state = Failed
	default:
		p.state = Resolved
	}
	p.res = res
	waiters := p.waiters
	p.waiters = nil
	parent := p.parent
	p.mu.Unlock()

	for _, w := range waiters {
		w(res)
	}
	if parent != nil {
		parent.onChildSettled()
	}
	return true
}

// onChildSettled decrements p's pending-children counter and, if the
// closure had already returned and this was the last child, finalizes p
// with its deferred outcome.
func (p *Promise) onChildSettled() {
	p.mu.Lock()
	p.pendingChildren--
	ready := p.closureDone && p.pendingChildren <= 0
	var res outcome
	if ready {
		res = *p.deferred
	}
	p.mu.Unlock()

	if ready {
		p.settle(res)
	}
}

// finishClosure records the outcome of p's task closure. If there are no
// pending children it settles p immediately; otherwise it cancels every
// pending child (top-down, per the cancellation engine) and defers
// settlement until onChildSettled observes the last one drain (spec
// invariant 3).
func (p *Promise) finishClosure(rt *runtime, res outcome) {
	p.mu.Lock()
	p.closureDone = true
	pending := p.pendingChildren
	if pending <= 0 {
		p.mu.Unlock()
		p.settle(res)
		return
	}
	p.deferred = &res
	children := make([]*Promise, 0, len(p.children))
	for _, c := range p.children {
		children = append(children, c)
	}
	p.mu.Unlock()

	for _, c := range children {
		rt.cancel(c)
	}
}

// requestCancel marks p as cancellation-requested. Idempotent.
func (p *Promise) requestCancel() {
	p.cancelRequested.Store(true)
}

func (p *Promise) cancelWasRequested() bool {
	return p.cancelRequested.Load()
}
