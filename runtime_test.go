package domains

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWorkerExcludesCaller(t *testing.T) {
	rt := &runtime{rnd: rand.New(rand.NewPCG(1, 2))}
	rt.domains = make([]*Domain, 3)
	for i := range rt.domains {
		rt.domains[i] = newDomain(i, rt, NoopEventsHook{}, rand.New(rand.NewPCG(uint64(i), 2)))
	}
	for trial := 0; trial < 50; trial++ {
		d, err := rt.pickWorker(1)
		require.NoError(t, err)
		assert.NotEqual(t, 1, d.id)
	}
}

func TestPickWorkerEmptyPool(t *testing.T) {
	rt := &runtime{rnd: rand.New(rand.NewPCG(1, 2))}
	rt.domains = make([]*Domain, 1)
	rt.domains[0] = newDomain(0, rt, NoopEventsHook{}, rand.New(rand.NewPCG(1, 2)))
	_, err := rt.pickWorker(0)
	assert.ErrorIs(t, err, ErrEmptyDomainPool)
}

func TestDomainByIDBounds(t *testing.T) {
	rt := &runtime{}
	rt.domains = make([]*Domain, 2)
	rt.domains[0] = newDomain(0, rt, NoopEventsHook{}, rand.New(rand.NewPCG(1, 2)))
	rt.domains[1] = newDomain(1, rt, NoopEventsHook{}, rand.New(rand.NewPCG(3, 4)))
	assert.NotNil(t, rt.domainByID(0))
	assert.NotNil(t, rt.domainByID(1))
	assert.Nil(t, rt.domainByID(2))
	assert.Nil(t, rt.domainByID(-1))
}

// TestParallelMapReduce exercises Call's fan-out across a worker pool: one
// Call per element, then AwaitAll to collect results, the "parallel map"
// scenario.
func TestParallelMapReduce(t *testing.T) {
	inputs := []int{1, 2, 3, 4, 5, 6, 7, 8}
	v, err := Run(func(ctx *Context) (any, error) {
		promises := make([]*Promise, len(inputs))
		for i, n := range inputs {
			n := n
			p, err := ctx.Call(func(*Context) (any, error) {
				return n * n, nil
			})
			require.NoError(t, err)
			promises[i] = p
		}
		return ctx.AwaitAll(promises)
	}, WithDomains(4))
	require.NoError(t, err)

	values := v.([]any)
	sum := 0
	for _, x := range values {
		sum += x.(int)
	}
	assert.Equal(t, 1+4+9+16+25+36+49+64, sum)
}

// TestConcurrentSleepersInterleaveViaYield models the "concurrent sleepers"
// scenario without any real I/O: several CallCC tasks each Yield a
// different number of times before finishing, and all must complete.
func TestConcurrentSleepersInterleaveViaYield(t *testing.T) {
	const n = 20
	v, err := Run(func(ctx *Context) (any, error) {
		promises := make([]*Promise, n)
		for i := 0; i < n; i++ {
			ticks := i % 5
			p, err := ctx.CallCC(func(cc *Context) (any, error) {
				for t := 0; t < ticks; t++ {
					cc.Yield()
				}
				return ticks, nil
			})
			require.NoError(t, err)
			promises[i] = p
		}
		return ctx.AwaitAll(promises)
	})
	require.NoError(t, err)
	assert.Len(t, v.([]any), n)
}

func TestDomainStatsReflectActivity(t *testing.T) {
	_, err := Run(func(ctx *Context) (any, error) {
		p, err := ctx.CallCC(func(cc *Context) (any, error) { return 1, nil })
		require.NoError(t, err)
		_, err = ctx.Await(p)
		require.NoError(t, err)

		stats := ctx.domain.Stats()
		assert.GreaterOrEqual(t, stats.Ticks, uint64(1))
		assert.GreaterOrEqual(t, stats.TasksRun, uint64(1))
		return nil, nil
	})
	require.NoError(t, err)
}
