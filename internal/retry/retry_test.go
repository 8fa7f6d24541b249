package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/snoozeclient/internal/logger"
	"github.com/hitoshi/snoozeclient/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Decision
	}{
		{"nil", nil, DecisionDone},
		{"network", model.NewNetworkError("down", nil), DecisionBackoff},
		{"protocol", model.NewProtocolError("garbled", nil), DecisionStop},
		{"auth", model.NewAuthError("expired"), DecisionStop},
		{"not found", model.NewStoryNotFoundError("s1"), DecisionStop},
		{"plain", errors.New("boom"), DecisionStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{2, 800 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{4, 2 * time.Second},
		{10, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := CalculateBackoff(tt.retries); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}

// recordingSleep は待機せずに遅延を記録する。
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_RetriesNetworkErrorsUntilSuccess(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 3, Logger: logger.Discard(), Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), "fetch_feed", func(context.Context) error {
		calls++
		if calls < 3 {
			return model.NewNetworkError("down", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 || delays[0] != 200*time.Millisecond || delays[1] != 400*time.Millisecond {
		t.Errorf("delays = %v, want [200ms 400ms]", delays)
	}
}

func TestPolicy_GivesUpAfterMaxRetries(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 2, Logger: logger.Discard(), Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), "fetch_feed", func(context.Context) error {
		calls++
		return model.NewNetworkError("down", nil)
	})

	if !model.IsNetwork(err) {
		t.Errorf("expected network error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_DoesNotRetryOtherCategories(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 5, Logger: logger.Discard(), Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), "fetch_story", func(context.Context) error {
		calls++
		return model.NewStoryNotFoundError("s1")
	})

	if !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if calls != 1 || len(delays) != 0 {
		t.Errorf("calls = %d, delays = %v; want a single attempt", calls, delays)
	}
}

func TestPolicy_ZeroRetries(t *testing.T) {
	p := Policy{Logger: logger.Discard()}

	calls := 0
	_ = p.Do(context.Background(), "fetch_feed", func(context.Context) error {
		calls++
		return model.NewNetworkError("down", nil)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 5, Logger: logger.Discard()}

	calls := 0
	start := time.Now()
	err := p.Do(ctx, "fetch_feed", func(context.Context) error {
		calls++
		cancel()
		return model.NewNetworkError("down", nil)
	})

	if !model.IsNetwork(err) {
		t.Errorf("expected the last network error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled context should interrupt the backoff wait")
	}
}
