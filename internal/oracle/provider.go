package oracle

import "context"

// Provider is a text-generation backend.
type Provider interface {
	// Name returns the provider name (e.g. "anthropic", "openai").
	Name() string
	// Model returns the model identifier requests are sent to.
	Model() string
	// Generate sends a prompt and returns the text of the reply.
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single prompt to a Provider.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int64
}
