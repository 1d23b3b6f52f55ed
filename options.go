package domains

import (
	"math/rand/v2"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// config collects the options Run accepts, modeled on the teacher's
// options.go (functional Option func(*config) pattern).
type config struct {
	numDomains int
	rnd        *rand.Rand
	newEvents  func() EventsHook
}

// Option configures a Run invocation.
type Option func(*config)

// WithDomains sets the size of the worker domain pool (domains other than
// the main domain that runs the root task). n is clamped to at least 0;
// Call fails with ErrEmptyDomainPool whenever the pool is empty. Defaults
// to one less than the number of available processors, minimum 1.
func WithDomains(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.numDomains = n
	}
}

// WithRand supplies the PRNG used for run-queue selection and dispatcher
// domain assignment (spec.md §9: both must draw from a runtime-seeded
// source, never simple round-robin). Defaults to a source seeded from the
// runtime's own entropy.
func WithRand(r *rand.Rand) Option {
	return func(c *config) {
		c.rnd = r
	}
}

// WithEvents supplies the EventsHook factory used for every domain in the
// pool (including the main domain). Defaults to NoopEventsHook.
func WithEvents(factory func() EventsHook) Option {
	return func(c *config) {
		c.newEvents = factory
	}
}

// WithLogger is sugar for SetLogger, so a caller can configure logging in
// the same options list as everything else passed to Run.
func WithLogger(l *logiface.Logger[*stumpy.Event]) Option {
	return func(c *config) {
		SetLogger(l)
	}
}
