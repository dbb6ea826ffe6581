package platforms

import (
	"context"
)

// Request is a single system + user exchange with a chat model.
type Request struct {
	System string
	Prompt string
	// JSON asks the model for a JSON object response.
	JSON bool
}

// LLM is what the ranker and the summarizer need from a model provider.
type LLM interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
