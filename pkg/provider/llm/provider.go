// Package llm defines the Provider interface for Large Language Model backends.
//
// castmix uses a model only to draft spoken answers for in-recording voice
// commands, so the interface is a single blocking completion call.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction sent before the conversation as a
	// "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
