package domains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGet(t *testing.T) {
	r := newRegistry()
	p := newPromise(1, TaskKind, 0, nil)
	r.add(p)

	got, ok := r.get(1)
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = r.get(2)
	assert.False(t, ok)
}

func TestRegistryPendingCount(t *testing.T) {
	r := newRegistry()
	a := newPromise(1, TaskKind, 0, nil)
	b := newPromise(2, TaskKind, 0, nil)
	r.add(a)
	r.add(b)
	assert.Equal(t, 2, r.pendingCount())

	a.settle(outcome{value: 1})
	assert.Equal(t, 1, r.pendingCount())
}

func TestRegistryScavengeDropsSettledConsumed(t *testing.T) {
	r := newRegistry()
	for i := uint64(0); i < 300; i++ {
		p := newPromise(i, TaskKind, 0, nil)
		p.settle(outcome{value: i})
		p.mu.Lock()
		p.consumed = true
		p.mu.Unlock()
		r.add(p)
	}
	r.scavenge()
	assert.Empty(t, r.data)
}

func TestRegistryScavengeKeepsBelowThreshold(t *testing.T) {
	r := newRegistry()
	for i := uint64(0); i < 10; i++ {
		p := newPromise(i, TaskKind, 0, nil)
		p.settle(outcome{value: i})
		p.mu.Lock()
		p.consumed = true
		p.mu.Unlock()
		r.add(p)
	}
	r.scavenge()
	assert.Len(t, r.data, 10, "scavenge must not run below the size threshold")
}

func TestRegistrySnapshotIDs(t *testing.T) {
	r := newRegistry()
	r.add(newPromise(1, TaskKind, 0, nil))
	r.add(newPromise(2, TaskKind, 0, nil))
	ids := r.snapshotIDs()
	assert.ElementsMatch(t, []uint64{1, 2}, ids)
}
