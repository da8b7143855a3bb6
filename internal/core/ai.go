package core

import "context"

// EmbeddingProvider turns text into fixed-dimension vectors for chunk
// indexing and query retrieval. Vectors produced by different models are
// never comparable, so callers track the model name alongside.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider runs one grounded completion: metadata discovery over parsed
// document text, report section drafting, ad-hoc collection Q&A.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
