package agent

import (
	"context"
	"time"

	"parliament/pkg/agent/llm"
	"parliament/pkg/agent/llmerrors"
)

// MetricsRecorder receives one observation per completed LLM request.
// Implemented by the Prometheus recorder in pkg/metrics; a nil recorder
// disables recording.
type MetricsRecorder interface {
	ObserveLLMRequest(model, role string, success bool, errorType string, duration time.Duration)
}

// metricsClient wraps an LLMClient and reports request outcomes.
type metricsClient struct {
	client   llm.LLMClient
	recorder MetricsRecorder
	role     string // pipeline role: expert, synthesizer, chair
}

// MetricsMiddleware returns a middleware recording request outcomes under
// the given pipeline role.
func MetricsMiddleware(recorder MetricsRecorder, role string) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if recorder == nil {
			return next
		}
		return &metricsClient{client: next, recorder: recorder, role: role}
	}
}

func (m *metricsClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := m.client.Complete(ctx, req)

	errorType := ""
	if err != nil {
		errorType = llmerrors.TypeOf(err).String()
	}
	m.recorder.ObserveLLMRequest(m.client.GetModelName(), m.role, err == nil, errorType, time.Since(start))

	return resp, err
}

func (m *metricsClient) GetModelName() string {
	return m.client.GetModelName()
}
