package sync

import (
	"context"
	"errors"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/adlio/asanadw/internal/asana"
)

// fakeSleeps swaps the governor's sleeper for one that records durations.
func fakeSleeps(g *Governor) *[]time.Duration {
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func quietLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestGovernor_SucceedsFirstTry(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Errorf("calls=%d slept=%v", calls, *slept)
	}
}

func TestGovernor_TransientBackoff(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &asana.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Errorf("backoff = %v, want [1s 2s]", *slept)
	}
}

func TestGovernor_TransientGivesUpAfterThree(t *testing.T) {
	g := NewGovernor(quietLogger())
	fakeSleeps(g)

	calls := 0
	wantErr := &asana.APIError{StatusCode: http.StatusBadGateway, Message: "bad"}
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != 4 { // initial + 3 retries
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestGovernor_RateLimitUsesRetryAfter(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &asana.APIError{
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: 7 * time.Second,
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Errorf("slept = %v, want [7s]", *slept)
	}
}

func TestGovernor_RateLimitDefaultsTo60s(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &asana.APIError{StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != defaultRetryAfter {
		t.Errorf("slept = %v, want [60s]", *slept)
	}
}

func TestGovernor_NonTransientSurfacesImmediately(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &asana.APIError{StatusCode: http.StatusNotFound, Message: "missing"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *asana.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Errorf("calls=%d slept=%v; 4xx must not retry", calls, *slept)
	}
}

func TestGovernor_BackpressurePacing(t *testing.T) {
	g := NewGovernor(quietLogger())
	slept := fakeSleeps(g)

	for i := 0; i < backpressureThreshold; i++ {
		g.record429()
	}
	err := g.Do(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != pacingDelay {
		t.Errorf("slept = %v, want pacing delay %v", *slept, pacingDelay)
	}
}

func TestGovernor_CancelledContext(t *testing.T) {
	g := NewGovernor(quietLogger())
	g.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Do(ctx, func(ctx context.Context) error {
		return &asana.APIError{StatusCode: http.StatusInternalServerError}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
