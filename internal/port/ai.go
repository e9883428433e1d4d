package port

import "context"

// Embedder maps text to fixed-length vectors. Implementations can target
// Ollama, OpenAI, or any compatible API.
type Embedder interface {
	// ModelName returns the identifier of the embedding model.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call,
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateOptions configures a single completion.
type GenerateOptions struct {
	Temperature float64 // 0.0 - 1.0
	MaxTokens   int
}

// LLM produces a completion for a prompt.
type LLM interface {
	ModelName() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Pinger is implemented by backends that can check reachability without
// running inference.
type Pinger interface {
	Ping(ctx context.Context) error
}
