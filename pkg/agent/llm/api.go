// Package llm provides interfaces and types for language model client
// implementations. The boundary is strictly request/response: the pipeline
// never needs partial output.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// TemperatureDefault suits synthesis and judgment calls. Allows some
	// exploration while staying focused.
	TemperatureDefault = 0.3

	// TemperatureExpert gives persona proposals room to diverge from each
	// other, which is the point of collecting several.
	TemperatureExpert = 0.7

	// DefaultMaxTokens bounds responses when a caller does not care.
	DefaultMaxTokens = 4096
)

// JSONInstruction is appended to prompts when a request sets ExpectJSON.
// Vendor clients that lack a native JSON response mode rely on it.
const JSONInstruction = "Respond with a single valid JSON object and nothing else. No markdown fences, no commentary."

// CacheControl marks a message for provider-side prompt caching.
// Used with Anthropic's prompt caching to reduce cost on long transcripts.
type CacheControl struct {
	Type string `json:"type"`          // "ephemeral"
	TTL  string `json:"ttl,omitempty"` // "5m" or "1h"
}

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content      string
	CacheControl *CacheControl `json:"cache_control,omitempty"`
	Role         CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	ExpectJSON  bool // caller will parse the content as one JSON object
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // main response text
	StopReason string // "end_turn", "max_tokens", etc.
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // established name
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // established name
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
