package food

import (
	"context"
	"fmt"
	"log"
	"time"

	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/shared"
)

// VectorStore is where food embeddings are kept.
type VectorStore interface {
	Save(ctx context.Context, foodID string, embedding []float32, textHash string) error
	TextHash(ctx context.Context, foodID string) (string, error)
	Similarity(ctx context.Context, query []float32, excludeIDs []string) ([]llm.Scored, error)
}

// IndexStats summarizes an indexing run.
type IndexStats struct {
	Indexed int
	Skipped int
	Failed  int
	Meta    shared.AgentMeta
}

// Indexer embeds catalog foods for semantic substitute search.
type Indexer struct {
	repo    *Repository
	vectors VectorStore
	embed   llm.EmbeddingGenerator
}

// NewIndexer creates an Indexer.
func NewIndexer(repo *Repository, vectors VectorStore, embed llm.EmbeddingGenerator) *Indexer {
	return &Indexer{repo: repo, vectors: vectors, embed: embed}
}

// IndexAll embeds every food whose text changed since it was last indexed.
// A failure on one food is logged and the run continues.
func (ix *Indexer) IndexAll(ctx context.Context) (IndexStats, error) {
	start := time.Now()
	foods, err := ix.repo.List(ctx, nil)
	if err != nil {
		return IndexStats{}, err
	}

	stats := IndexStats{Meta: shared.AgentMeta{AgentName: "FoodIndexer"}}
	for _, f := range foods {
		hash := f.TextHash()
		current, err := ix.vectors.TextHash(ctx, f.ID)
		if err != nil {
			return stats, err
		}
		if current == hash {
			stats.Skipped++
			continue
		}

		embedding, err := ix.embed.GenerateEmbedding(ctx, f.ToEmbeddingText())
		if err != nil {
			log.Printf("Failed to embed food '%s': %v", f.Name, err)
			stats.Failed++
			continue
		}
		if err := ix.vectors.Save(ctx, f.ID, embedding, hash); err != nil {
			return stats, fmt.Errorf("failed to save embedding for %s: %w", f.ID, err)
		}
		stats.Indexed++
	}
	stats.Meta.Latency = time.Since(start)
	return stats, nil
}
