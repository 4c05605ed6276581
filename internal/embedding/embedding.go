// Package embedding turns schema documents and questions into vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/Beni-V/text2sql/internal/config"
)

type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding space. Snapshots built with a
	// different model are never reused.
	Model() string
	// Dimensions is 0 when the backend decides the width.
	Dimensions() int
}

func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.EmbeddingHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	case config.EmbeddingOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
