package domains

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopEventsHookBlocksUntilWoken(t *testing.T) {
	wake := make(chan struct{}, 1)
	hc := &HookContext{wake: wake}

	done := make(chan []RunnableEntry)
	go func() {
		done <- NoopEventsHook{}.Select(hc)
	}()

	select {
	case <-done:
		t.Fatal("Select returned before being woken")
	case <-time.After(50 * time.Millisecond):
	}

	wake <- struct{}{}
	select {
	case entries := <-done:
		assert.Empty(t, entries)
	case <-time.After(time.Second):
		t.Fatal("Select never returned after wake")
	}
}

func TestNoopEventsHookInterruptIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NoopEventsHook{}.Interrupt()
	})
}

func TestTaskBindsPromiseAndClosure(t *testing.T) {
	p := newPromise(1, SyscallKind, 0, nil)
	ran := false
	re := Task(p, func() (any, error) {
		ran = true
		return "value", nil
	})
	assert.Same(t, p, re.promise)
	v, err := re.closure()
	assert.True(t, ran)
	assert.NoError(t, err)
	assert.Equal(t, "value", v)
}
