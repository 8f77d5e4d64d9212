package llmcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attestlabs/attest/internal/anthropic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testExecutor(maxAttempts int) *Executor {
	return NewExecutor(maxAttempts, time.Millisecond, discardLogger())
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	exec := testExecutor(3)
	calls := 0

	comp, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		return &anthropic.Completion{Content: "ok", FinishReason: anthropic.FinishStop}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "ok" {
		t.Errorf("content = %q, want ok", comp.Content)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteRetriesTransientAPIError(t *testing.T) {
	exec := testExecutor(3)
	calls := 0

	comp, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		if calls < 3 {
			return nil, &anthropic.APIError{Status: 500, Message: "overloaded"}
		}
		return &anthropic.Completion{Content: "recovered", FinishReason: anthropic.FinishStop}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "recovered" {
		t.Errorf("content = %q, want recovered", comp.Content)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteRetriesRateLimit(t *testing.T) {
	exec := testExecutor(2)
	calls := 0

	_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		if calls == 1 {
			return nil, &anthropic.APIError{Status: 429, Type: "rate_limit_error", Message: "slow down"}
		}
		return &anthropic.Completion{Content: "ok", FinishReason: anthropic.FinishStop}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteClientErrorIsFatal(t *testing.T) {
	exec := testExecutor(3)
	calls := 0

	_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		return nil, &anthropic.APIError{Status: 400, Type: "invalid_request_error", Message: "bad request"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (client errors must not retry)", calls)
	}
}

func TestExecuteTruncationIsFatal(t *testing.T) {
	exec := testExecutor(3)
	calls := 0

	_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		return &anthropic.Completion{Content: "partial", FinishReason: anthropic.FinishLength}, nil
	})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (truncation must not retry)", calls)
	}
}

func TestExecuteContentFilterRetries(t *testing.T) {
	exec := testExecutor(2)
	calls := 0

	_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		return &anthropic.Completion{Content: "", FinishReason: anthropic.FinishContentFilter}, nil
	})
	if !errors.Is(err, ErrContentFiltered) {
		t.Fatalf("error = %v, want wrapped ErrContentFiltered", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (content filter retries until exhaustion)", calls)
	}
}

func TestExecuteEmptyContentRetries(t *testing.T) {
	exec := testExecutor(3)
	calls := 0

	comp, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		if calls == 1 {
			return &anthropic.Completion{Content: "   \n", FinishReason: anthropic.FinishStop}, nil
		}
		return &anthropic.Completion{Content: "filled", FinishReason: anthropic.FinishStop}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "filled" {
		t.Errorf("content = %q, want filled", comp.Content)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteCancellationNeverRetries(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"sentinel", context.Canceled},
		{"wrapped sentinel", fmt.Errorf("api call: %w", context.Canceled)},
		{"message pattern", errors.New("Post \"http://x\": request canceled while waiting for connection")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := testExecutor(3)
			calls := 0
			_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
				calls++
				return nil, tc.err
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1 (cancellation must not retry)", calls)
			}
		})
	}
}

func TestExecuteDeadlineIsTransient(t *testing.T) {
	// A per-call HTTP timeout surfaces as DeadlineExceeded; the run-level
	// context is still live, so the call should be retried.
	exec := testExecutor(2)
	calls := 0

	comp, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("api call: %w", context.DeadlineExceeded)
		}
		return &anthropic.Completion{Content: "ok", FinishReason: anthropic.FinishStop}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp == nil || calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteExhaustionWrapsLastError(t *testing.T) {
	exec := testExecutor(3)

	_, err := exec.Execute(context.Background(), func(ctx context.Context) (*anthropic.Completion, error) {
		return nil, &anthropic.APIError{Status: 503, Message: "unavailable"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *anthropic.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("exhaustion error should wrap the last API error, got %v", err)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(5, 50*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := exec.Execute(ctx, func(ctx context.Context) (*anthropic.Completion, error) {
		calls++
		cancel()
		return nil, &anthropic.APIError{Status: 500, Message: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (backoff sleep must observe cancellation)", calls)
	}
}
