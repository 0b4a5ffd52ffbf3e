// Package llm defines the Provider interface for multimodal Large Language
// Model backends.
//
// A provider wraps a remote or local model API (OpenAI GPT-4o, Gemini Flash,
// Claude, a local Ollama instance, ...) and exposes a single request/response
// completion that accepts text plus attached images.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction injected before the
	// conversation history as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is the
	// user question and usually carries the camera image.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0].
	// Zero means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns promptly when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the configured model.
	Capabilities() ModelCapabilities
}
