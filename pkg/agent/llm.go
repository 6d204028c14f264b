// Package agent provides the LLM client factory, middleware, and shared
// client utilities used by the parliament pipeline.
package agent

import (
	"parliament/pkg/agent/llm"
)

// Re-exported types so callers outside the pipeline core do not need to
// import the llm subpackage directly.
type (
	// LLMClient is the language model boundary.
	LLMClient = llm.LLMClient
	// CompletionRequest is a request to generate a completion.
	CompletionRequest = llm.CompletionRequest
	// CompletionResponse is a completion result.
	CompletionResponse = llm.CompletionResponse
	// CompletionMessage is a single message in a request.
	CompletionMessage = llm.CompletionMessage
	// CompletionRole is a message role.
	CompletionRole = llm.CompletionRole
)

// Role constants re-exported from the llm subpackage.
const (
	RoleSystem    = llm.RoleSystem
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)
