package domains

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// log is the package-level structured logger, modeled on the teacher's
// globalLogger/SetStructuredLogger pair (eventloop/logging.go) but backed
// by the ecosystem's own logiface+stumpy rather than a bespoke in-house
// Logger interface: logiface is already a named dependency in the teacher's
// own go.mod, so this repo promotes it to ambient status instead of
// reinventing the same shape by hand (see SPEC_FULL.md's Ambient Stack).
var (
	logMu sync.RWMutex
	log   = stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithTimeField("ts"),
			stumpy.WithWriter(os.Stderr),
		),
	)
)

// SetLogger replaces the package-level logger, e.g. to write JSON
// elsewhere or at a different level. Safe to call before Run.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	logMu.Lock()
	defer logMu.Unlock()
	log = l
}

func currentLogger() *logiface.Logger[*stumpy.Event] {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func logDomainStarted(id int) {
	currentLogger().Info().Int64("domain", int64(id)).Log("domain started")
}

func logDomainStopped(id int) {
	currentLogger().Info().Int64("domain", int64(id)).Log("domain stopped")
}

func logTaskPanic(domainID int, promiseID uint64, err error) {
	currentLogger().Err().
		Int64("domain", int64(domainID)).
		Int64("promise", int64(promiseID)).
		Err(err).
		Log("task closure panicked")
}

func logCancelled(domainID int, promiseID uint64) {
	currentLogger().Warning().
		Int64("domain", int64(domainID)).
		Int64("promise", int64(promiseID)).
		Log("promise cancelled")
}
