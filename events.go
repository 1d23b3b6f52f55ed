package domains

// RunnableEntry is an opaque unit of work an EventsHook hands back to its
// Domain from Select, to be executed on the scheduler loop (never on the
// hook's own goroutine, if it has one). The only way to produce one is
// Task, which binds a closure to a syscall promise.
type RunnableEntry struct {
	promise  *Promise
	closure  func() (any, error)
}

// Task produces a RunnableEntry that, when run by the scheduler, executes
// closure and resolves p with its result: p is the moment's analogue of the
// teacher's "on_resolve runs when the promise leaves Pending" — here the
// events hook supplies the closure explicitly (typically the very one it
// was given when p was created via Context.Make) rather than the runtime
// reaching back into p's internals for it.
//
// p is expected to be a SyscallKind promise owned by the domain that will
// eventually run this entry. The scheduler does not check this: an entry is
// run, and its promise settled, by whichever domain's Select returned it.
func Task(p *Promise, closure func() (any, error)) RunnableEntry {
	return RunnableEntry{promise: p, closure: closure}
}

// HookContext is passed to EventsHook.Select. It exposes the one thing a
// hook needs beyond its own I/O readiness sources: a channel it can select
// on to notice that it has been interrupted (see EventsHook.Interrupt) or
// that the domain has new local work and Select should return promptly.
type HookContext struct {
	wake <-chan struct{}
}

// Wake returns the channel that receives a value when a sleeping domain is
// woken through Domain.wakeIfSleeping — new run-queue work (a Call
// dispatched here, a parked task resumed), a cancellation targeting a
// pending syscall promise this domain owns, or shutdown. Calling the hook's
// own Interrupt does not send on it.
func (hc *HookContext) Wake() <-chan struct{} {
	return hc.wake
}

// EventsHook is the runtime's entire I/O boundary (spec.md §6): the core
// scheduler knows nothing about file descriptors, timers, or networking. A
// hook is consulted only when a Domain's run queue is empty but it still
// owns at least one Pending promise.
//
// Select may block. It must return once new work is available or once
// Interrupt is called (from any goroutine, including another domain's).
// Returning a nil or empty slice is legal and means "nothing ready yet,
// but don't block again without being asked" — the scheduler will call
// Select again the next time it would otherwise go idle.
//
// Interrupt must be safe to call concurrently with Select and with itself,
// and must not block.
type EventsHook interface {
	Select(hc *HookContext) []RunnableEntry
	Interrupt()
}

// NoopEventsHook is the default EventsHook: it has no I/O sources of its
// own, so Select simply waits on the domain's own wake channel (the same
// signal a real hook's Interrupt would need to produce) and Interrupt does
// nothing, since nothing outside this call ever needs waking through it.
//
// This differs slightly from the no-op hook spec.md describes in prose
// ("select returns empty, interrupt does nothing") in one respect: rather
// than returning immediately every time (which would busy-spin the
// scheduler loop), Select here blocks on hc.Wake(). The observable contract
// is unchanged — Interrupt is still a genuine no-op, and the domain still
// wakes exactly when dispatcher/cancellation delivery requires it to,
// since that delivery always signals the same wake channel directly.
type NoopEventsHook struct{}

func (NoopEventsHook) Select(hc *HookContext) []RunnableEntry {
	<-hc.Wake()
	return nil
}

func (NoopEventsHook) Interrupt() {}
