/*
coordinator.go - Retrying unit-of-work execution

PURPOSE:
  Runs a transactional function against the store with optimistic
  concurrency: execute the function against a fresh unit, try to commit,
  and on conflict re-execute the whole function from scratch, up to a
  bound, with jittered exponential backoff between attempts.

RETRY DISCIPLINE:
  - Business errors returned by fn are NEVER retried; they propagate
    unchanged with zero state committed.
  - Only ErrConflict commits are retried, and always the whole unit.
  - Exhausting the bound fails with an Aborted-kind error.
  - Context cancellation between attempts aborts with no partial writes
    (nothing is applied until a commit succeeds).

Unit functions must therefore be side-effect-free apart from their
buffered writes; this engine performs no external calls inside units.

SEE ALSO:
  - unit.go: The handle fn receives
  - store.go: Commit semantics
*/
package engine

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	unitCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_unit_commits_total",
		Help: "Unit-of-work outcomes",
	}, []string{"outcome"}) // committed | conflict | aborted | error

	unitAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wager_unit_attempts",
		Help:    "Attempts needed per committed unit of work",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)

const (
	DefaultAttempts    = 5
	defaultBaseBackoff = 10 * time.Millisecond
)

// Coordinator executes units of work against a Store.
type Coordinator struct {
	Store       Store
	Attempts    int           // 0 means DefaultAttempts
	BaseBackoff time.Duration // 0 means 10ms
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{Store: store}
}

// Run executes fn as one atomic unit of work.
func (c *Coordinator) Run(ctx context.Context, fn func(u *Unit) error) error {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoff := c.BaseBackoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		u := newUnit(c.Store)

		if err := fn(u); err != nil {
			// Business failure: nothing was committed, never retried.
			return err
		}

		err := c.Store.Commit(ctx, u.reads, u.writes)
		if err == nil {
			unitCommitsTotal.WithLabelValues("committed").Inc()
			unitAttempts.Observe(float64(attempt))
			return nil
		}
		if errors.Is(err, ErrDocExists) {
			unitCommitsTotal.WithLabelValues("error").Inc()
			return Wrap(AlreadyExists, err, "document already exists")
		}
		if !errors.Is(err, ErrConflict) {
			unitCommitsTotal.WithLabelValues("error").Inc()
			log.Printf("unit of work: store commit failed: %v", err)
			return Wrap(Internal, err, "store commit failed")
		}

		unitCommitsTotal.WithLabelValues("conflict").Inc()
		if attempt == attempts {
			break
		}
		if err := sleepJittered(ctx, backoff, attempt); err != nil {
			return Wrap(Aborted, err, "unit of work cancelled")
		}
	}

	unitCommitsTotal.WithLabelValues("aborted").Inc()
	return Errorf(Aborted, "conflict retries exhausted after %d attempts", attempts)
}

// sleepJittered waits base*2^(attempt-1) +/- 50%, or until ctx is done.
func sleepJittered(ctx context.Context, base time.Duration, attempt int) error {
	d := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d))) - d/2
	select {
	case <-time.After(d + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
