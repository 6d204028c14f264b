package agent

import (
	"fmt"
	"time"

	"parliament/pkg/agent/internal/llmimpl/anthropic"
	"parliament/pkg/agent/internal/llmimpl/google"
	"parliament/pkg/agent/internal/llmimpl/ollama"
	"parliament/pkg/agent/internal/llmimpl/openai"
	"parliament/pkg/agent/llm"
	"parliament/pkg/config"
)

// Role identifies which pipeline role a client is constructed for. The
// role picks the configured model and labels metrics.
type Role string

const (
	// RoleExpert is used for persona proposal and analysis calls.
	RoleExpert Role = "expert"
	// RoleSynthesizer is used for question synthesis calls.
	RoleSynthesizer Role = "synthesizer"
	// RoleChair is used for the final recommendation call.
	RoleChair Role = "chair"
)

// LLMClientFactory creates LLM clients with the standard middleware chain.
type LLMClientFactory struct {
	cfg      config.Config
	recorder MetricsRecorder
}

// NewLLMClientFactory creates a factory. recorder may be nil to disable
// metrics.
func NewLLMClientFactory(cfg config.Config, recorder MetricsRecorder) *LLMClientFactory {
	return &LLMClientFactory{cfg: cfg, recorder: recorder}
}

// CreateClient builds the client for a pipeline role with the middleware
// chain Metrics -> Retry -> Timeout -> RawClient.
func (f *LLMClientFactory) CreateClient(role Role) (llm.LLMClient, error) {
	var modelName string
	switch role {
	case RoleExpert:
		modelName = f.cfg.Models.Expert
	case RoleSynthesizer:
		modelName = f.cfg.Models.Synthesizer
	case RoleChair:
		modelName = f.cfg.Models.Chair
	default:
		return nil, fmt.Errorf("unsupported client role: %s", role)
	}

	rawClient, err := f.createRawClient(modelName)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(f.cfg.Parliament.CallTimeoutSeconds) * time.Second
	client := llm.Chain(rawClient,
		MetricsMiddleware(f.recorder, string(role)),
		RetryMiddleware(DefaultRetryConfig),
		TimeoutMiddleware(timeout),
	)
	return client, nil
}

// createRawClient constructs the vendor client for a model, resolving the
// API key through the secrets precedence chain.
func (f *LLMClientFactory) createRawClient(modelName string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	switch provider {
	case config.ProviderAnthropic:
		apiKey, err := config.GetSecret(config.SecretAnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic API key: %w", err)
		}
		return anthropic.NewClaudeClientWithModel(apiKey, modelName), nil
	case config.ProviderOpenAI:
		apiKey, err := config.GetSecret(config.SecretOpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("openai API key: %w", err)
		}
		return openai.NewClientWithModel(apiKey, modelName), nil
	case config.ProviderGoogle:
		apiKey, err := config.GetSecret(config.SecretGeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini API key: %w", err)
		}
		return google.NewGeminiClientWithModel(apiKey, modelName), nil
	case config.ProviderOllama:
		baseURL := "http://localhost:11434"
		if f.cfg.Ollama != nil && f.cfg.Ollama.BaseURL != "" {
			baseURL = f.cfg.Ollama.BaseURL
		}
		return ollama.NewClientWithModel(baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
