package domains

import "sync/atomic"

// domainLifecycle represents a Domain's position in its lifecycle.
//
// State machine:
//
//	awake (0)       → running (1)      [Domain.run starts]
//	running (1)     → sleeping (2)     [tick finds nothing runnable, calls EventsHook.Select]
//	sleeping (2)    → running (1)      [Select returns, or the dispatcher posts a result/interrupt fires]
//	running (1)     → terminated (4)   [shutdown requested and no runnable or pending work left]
//
// terminating (3) is defined for the String table but no transition into it
// is ever made.
//
// Values are intentionally ordered the same way the teacher's LoopState is
// (eventloop/state.go), for the same reason: the "temporary" states
// (running/sleeping) are reached via CompareAndSwap, the terminal one via a
// plain Store, and getting that backwards is a correctness bug worth a
// distinct numbering scheme to make obvious in a debugger.
type domainLifecycle uint32

const (
	domainAwake domainLifecycle = iota
	domainRunning
	domainSleeping
	domainTerminating
	domainTerminated
)

func (s domainLifecycle) String() string {
	switch s {
	case domainAwake:
		return "awake"
	case domainRunning:
		return "running"
	case domainSleeping:
		return "sleeping"
	case domainTerminating:
		return "terminating"
	case domainTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// domainState is a lock-free CAS state machine for one Domain, modeled on the
// teacher's FastState (eventloop/state.go). A plain atomic.Uint32 wrapped in a
// small named type rather than the teacher's cache-line padding: Domain-level
// transitions are orders of magnitude rarer than the teacher's per-tick
// transitions (it flips a handful of times per task-batch, not per poll
// iteration), so false-sharing avoidance doesn't earn its complexity budget here.
type domainState struct {
	v atomic.Uint32
}

func newDomainState() *domainState {
	s := &domainState{}
	s.v.Store(uint32(domainAwake))
	return s
}

func (s *domainState) Load() domainLifecycle {
	return domainLifecycle(s.v.Load())
}

func (s *domainState) Store(v domainLifecycle) {
	s.v.Store(uint32(v))
}

func (s *domainState) TryTransition(from, to domainLifecycle) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
