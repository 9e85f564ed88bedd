package ai

import "context"

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Generator produces a text completion for a single prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// EmbeddingModel turns text into a vector.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions reports the length of the vectors the model produces.
	Dimensions(ctx context.Context) (int, error)
	Model() string
}
