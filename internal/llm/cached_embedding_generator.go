package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// CachedEmbeddingGenerator memoizes embeddings by text hash and persists them
// to a JSON file, so swap queries and re-indexing skip the API for known text.
type CachedEmbeddingGenerator struct {
	realGen EmbeddingGenerator
	path    string

	mu    sync.RWMutex
	cache map[string][]float32
	dirty bool
}

// NewCachedEmbeddingGenerator loads the cache file when it exists.
func NewCachedEmbeddingGenerator(realGen EmbeddingGenerator, cacheFilePath string) (*CachedEmbeddingGenerator, error) {
	c := &CachedEmbeddingGenerator{
		realGen: realGen,
		path:    cacheFilePath,
		cache:   make(map[string][]float32),
	}

	if err := os.MkdirAll(filepath.Dir(cacheFilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := os.ReadFile(cacheFilePath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache %s: %w", cacheFilePath, err)
	}
	if err := json.Unmarshal(data, &c.cache); err != nil {
		return nil, fmt.Errorf("failed to parse embedding cache %s: %w", cacheFilePath, err)
	}

	log.Printf("Loaded %d cached embeddings from %s", len(c.cache), cacheFilePath)
	return c, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GenerateEmbedding returns the cached vector or asks the wrapped generator.
// The API call runs without holding the lock.
func (c *CachedEmbeddingGenerator) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	k := cacheKey(text)

	c.mu.RLock()
	embedding, ok := c.cache[k]
	c.mu.RUnlock()
	if ok {
		return embedding, nil
	}

	embedding, err := c.realGen.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	c.mu.Lock()
	c.cache[k] = embedding
	c.dirty = true
	c.mu.Unlock()
	return embedding, nil
}

// Len returns the number of cached embeddings.
func (c *CachedEmbeddingGenerator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// SaveCache writes the cache file if anything was added since the last save.
func (c *CachedEmbeddingGenerator) SaveCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := json.Marshal(c.cache)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace embedding cache: %w", err)
	}

	c.dirty = false
	log.Printf("Saved %d embeddings to %s", len(c.cache), c.path)
	return nil
}
