package sync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adlio/asanadw/internal/asana"
)

const (
	maxTransientRetries = 3
	defaultRetryAfter   = 60 * time.Second

	// Backpressure: seeing this many 429s inside the window inserts a
	// voluntary pacing delay before every call until the window drains.
	backpressureWindow    = 5 * time.Minute
	backpressureThreshold = 5
	pacingDelay           = 2 * time.Second
)

// Governor wraps outbound API calls with retry, backoff, and throttling.
//
// Rate-limit responses sleep for the server-provided Retry-After (60s when
// absent) and retry indefinitely; they are never fatal. Transient errors
// back off exponentially (1s, 2s, 4s) for up to three retries, after which
// the call surfaces as failed and the batch containing it rolls back.
type Governor struct {
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error

	mu          sync.Mutex
	recent429At []time.Time
}

// NewGovernor builds a governor. A nil logger defaults to stderr.
func NewGovernor(logger *log.Logger) *Governor {
	if logger == nil {
		logger = log.Default()
	}
	return &Governor{logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op, absorbing rate limits and retrying transient failures.
func (g *Governor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if d := g.pacing(); d > 0 {
		g.logger.Printf("governor: backpressure pacing, sleeping %s", d)
		if err := g.sleep(ctx, d); err != nil {
			return err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 4 * time.Second
	bo.Reset()

	transientAttempts := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if asana.IsRateLimited(err) {
			g.record429()
			wait := defaultRetryAfter
			var apiErr *asana.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			g.logger.Printf("governor: rate limited, waiting %s", wait)
			if serr := g.sleep(ctx, wait); serr != nil {
				return serr
			}
			continue
		}

		if asana.IsTransient(err) && transientAttempts < maxTransientRetries {
			wait := bo.NextBackOff()
			transientAttempts++
			g.logger.Printf("governor: transient error (%v), retry %d/%d in %s",
				err, transientAttempts, maxTransientRetries, wait)
			if serr := g.sleep(ctx, wait); serr != nil {
				return serr
			}
			continue
		}

		return err
	}
}

func (g *Governor) record429() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent429At = append(g.recent429At, time.Now())
}

// pacing returns a voluntary delay when recent 429 frequency crossed the
// threshold, pruning entries outside the window.
func (g *Governor) pacing() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-backpressureWindow)
	kept := g.recent429At[:0]
	for _, t := range g.recent429At {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recent429At = kept
	if len(kept) >= backpressureThreshold {
		return pacingDelay
	}
	return 0
}
