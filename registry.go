package domains

import (
	"slices"
	"sync"

	"golang.org/x/exp/maps"
)

// registry is the arena of promises owned by a single Domain, keyed by id.
// Modeled on the teacher's registry.go (weak.Pointer ring-buffer scavenger),
// adapted for a multi-domain world: each Domain gets its own registry rather
// than one shared across the whole process, since only a promise's owner
// domain is ever allowed to mutate it (see Promise.ownerDomain).
//
// Unlike the teacher, entries here hold strong pointers: the Go garbage
// collector already reclaims a promise the moment nothing references it
// (including its parent's children map), so the teacher's weak-pointer
// liveness dance — needed because its registry was the *only* long-lived
// reference keeping leaked promises from ever being noticed — isn't doing
// useful work here. What is still worth keeping is the teacher's batched
// scavenge pass: periodically dropping settled, already-consumed entries so
// a long-running domain's registry doesn't grow without bound.
type registry struct {
	mu   sync.Mutex
	data map[uint64]*Promise
}

func newRegistry() *registry {
	return &registry{data: make(map[uint64]*Promise)}
}

func (r *registry) add(p *Promise) {
	r.mu.Lock()
	r.data[p.id] = p
	r.mu.Unlock()
}

func (r *registry) get(id uint64) (*Promise, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	return p, ok
}

// pendingCount reports how many promises this registry currently owns that
// are still Pending — used by Domain.run to decide whether calling
// EventsHook.Select is worthwhile versus parking on the dispatcher wake
// channel outright.
func (r *registry) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.data {
		if IsPending(p) {
			n++
		}
	}
	return n
}

// scavenge drops settled-and-consumed entries once the registry has grown
// past a small threshold, mirroring eventloop/registry.go's Scavenge/
// compactAndRenew pair without the weak-pointer liveness check (unneeded
// here, see the type doc).
func (r *registry) scavenge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) < 256 {
		return
	}
	for id, p := range r.data {
		p.mu.Lock()
		dead := p.state != Pending && p.consumed
		p.mu.Unlock()
		if dead {
			delete(r.data, id)
		}
	}
}

// snapshotIDs returns a copy of the currently-registered ids, used by tests
// and Domain.Stats(); grounded on the teacher's use of golang.org/x/exp
// helpers for this exact kind of map-to-slice conversion.
func (r *registry) snapshotIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Collect(maps.Keys(r.data))
}
