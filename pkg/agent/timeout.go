package agent

import (
	"context"
	"time"

	"parliament/pkg/agent/llm"
)

// timeoutClient bounds every Complete call with a deadline. Timed-out
// calls surface as context.DeadlineExceeded and count as that
// participant's failure.
type timeoutClient struct {
	client  llm.LLMClient
	timeout time.Duration
}

// TimeoutMiddleware returns a middleware enforcing a per-call deadline.
func TimeoutMiddleware(timeout time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return &timeoutClient{client: next, timeout: timeout}
	}
}

func (t *timeoutClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if t.timeout <= 0 {
		return t.client.Complete(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.client.Complete(ctx, req)
}

func (t *timeoutClient) GetModelName() string {
	return t.client.GetModelName()
}
