package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parliament/pkg/agent/llm"
	"parliament/pkg/agent/llmerrors"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "ok"}},
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "rate limit exceeded"),
			nil,
		},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "never reached"}},
		[]error{llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad API key")},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	mock := NewMockLLMClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout"),
	})
	client := NewRetryableClient(mock, fastRetryConfig(2))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryStringHeuristics(t *testing.T) {
	client := &RetryableClient{config: fastRetryConfig(1)}

	assert.True(t, client.shouldRetry(fmt.Errorf("request timeout")))
	assert.True(t, client.shouldRetry(fmt.Errorf("got 429 from server")))
	assert.True(t, client.shouldRetry(fmt.Errorf("HTTP 503 unavailable")))
	assert.True(t, client.shouldRetry(fmt.Errorf("empty response body")))
	assert.False(t, client.shouldRetry(fmt.Errorf("HTTP 401 unauthorized")))
	assert.False(t, client.shouldRetry(fmt.Errorf("something odd happened")))
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	mock := NewMockLLMClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout"),
	})
	client := NewRetryableClient(mock, RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Hour, // never elapses
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, llm.NewCompletionRequest(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMiddlewareChainOrder(t *testing.T) {
	mock := NewMockLLMClient([]llm.CompletionResponse{{Content: "done"}}, nil)

	client := llm.Chain(mock,
		RetryMiddleware(fastRetryConfig(1)),
		TimeoutMiddleware(time.Second),
	)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, "mock-model", client.GetModelName())
}
