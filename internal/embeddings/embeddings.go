// Package embeddings converts text into fixed-length vectors for
// similarity search. Two backends are available: a local Ollama server
// and any OpenAI-compatible embeddings API.
package embeddings

import "context"

// Embedder generates text embeddings.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the configured model identifier.
	Model() string
}
