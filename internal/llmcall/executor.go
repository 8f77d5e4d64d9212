// Package llmcall wraps individual inference calls with retry, backoff, and
// outcome classification. It knows nothing about JSON shape; callers layer
// their own contracts on top.
package llmcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attestlabs/attest/internal/anthropic"
)

// Completer is the single inference capability this core consumes. The
// concrete client is constructed by the caller; no credentials live here.
type Completer interface {
	Complete(ctx context.Context, req anthropic.Request) (*anthropic.Completion, error)
	Model() string
}

// ErrTruncated means the model ran out of output budget. Retrying would
// reproduce the same truncation, so it is fatal.
var ErrTruncated = errors.New("response truncated: model ran out of output tokens — reduce input size or choose a less aggressive strategy")

// ErrEmptyResponse is the retryable empty-content condition.
var ErrEmptyResponse = errors.New("empty response content")

// ErrContentFiltered is the retryable content-filter condition, treated as a
// likely false positive.
var ErrContentFiltered = errors.New("response blocked by content filter")

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
)

// Executor retries a single inference call with exponential backoff.
type Executor struct {
	maxAttempts  int
	initialDelay time.Duration
	logger       *slog.Logger
}

func NewExecutor(maxAttempts int, initialDelay time.Duration, logger *slog.Logger) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Executor{maxAttempts: maxAttempts, initialDelay: initialDelay, logger: logger}
}

// outcome is the explicit classification of one attempt. Retryable failures
// are expected control flow, not exceptional conditions.
type outcome struct {
	completion *anthropic.Completion
	err        error
	retryable  bool
}

// Execute runs call until it succeeds, fails fatally, or attempts are
// exhausted. On exhaustion the last retryable error is returned.
func (e *Executor) Execute(ctx context.Context, call func(context.Context) (*anthropic.Completion, error)) (*anthropic.Completion, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.initialDelay * (1 << (attempt - 1))
			e.logger.Debug("retrying inference call", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		comp, err := call(ctx)
		out := classify(comp, err)
		if out.err == nil {
			return out.completion, nil
		}
		if !out.retryable {
			return nil, out.err
		}

		lastErr = out.err
		e.logger.Warn("retryable inference failure", "attempt", attempt+1, "error", out.err)
	}
	return nil, fmt.Errorf("inference failed after %d attempts: %w", e.maxAttempts, lastErr)
}

// classify decides what one attempt's result means. Cancellation is always
// fatal and never reclassified; truncation is fatal; transport/5xx errors,
// content-filter stops, and empty content are retryable.
func classify(comp *anthropic.Completion, err error) outcome {
	if err != nil {
		if isCancellation(err) {
			return outcome{err: err}
		}
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return outcome{err: err, retryable: apiErr.Transient()}
		}
		// Transport-level failures (connection reset, timeout) are transient.
		return outcome{err: err, retryable: true}
	}

	switch comp.FinishReason {
	case anthropic.FinishLength:
		return outcome{err: ErrTruncated}
	case anthropic.FinishContentFilter:
		return outcome{err: ErrContentFiltered, retryable: true}
	}

	if strings.TrimSpace(comp.Content) == "" {
		return outcome{err: ErrEmptyResponse, retryable: true}
	}

	return outcome{completion: comp}
}

// isCancellation detects caller-initiated aborts, by sentinel and by message
// pattern for errors that lost their wrapping across the HTTP client.
// Deadline expiry is deliberately excluded: a per-call timeout is a transient
// network condition, and an expired run-level context stops the retry loop at
// the next backoff sleep anyway.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "operation was canceled") ||
		strings.Contains(msg, "request canceled")
}
