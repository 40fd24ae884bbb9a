package llm

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"slices"
)

// VectorRepository stores food embeddings and answers similarity queries
// by brute-force cosine similarity.
type VectorRepository struct {
	db *sql.DB
}

func NewVectorRepository(d *sql.DB) *VectorRepository {
	return &VectorRepository{db: d}
}

// Scored is an identifier with its similarity to a query.
type Scored struct {
	ID    string
	Score float64
}

// Save stores the embedding of a food. textHash identifies the text that was
// embedded so unchanged foods can be skipped on re-index.
func (r *VectorRepository) Save(ctx context.Context, foodID string, embedding []float32, textHash string) error {
	embeddingBytes, err := float32SliceToByteSlice(embedding)
	if err != nil {
		return fmt.Errorf("failed to convert float32 slice to byte slice: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO food_embeddings (food_id, embedding, text_hash) VALUES (?, ?, ?)
		ON CONFLICT(food_id) DO UPDATE SET embedding = excluded.embedding, text_hash = excluded.text_hash`,
		foodID, embeddingBytes, textHash)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

func (r *VectorRepository) Get(ctx context.Context, foodID string) ([]float32, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT embedding FROM food_embeddings WHERE food_id = ?`, foodID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Embedding not found
		}
		return nil, fmt.Errorf("failed to get embedding by food ID: %w", err)
	}

	embedding, err := byteSliceToFloat32Slice(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert byte slice to float32 slice: %w", err)
	}
	return embedding, nil
}

// TextHash returns the stored text hash of a food, or "" if it has no embedding.
func (r *VectorRepository) TextHash(ctx context.Context, foodID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT text_hash FROM food_embeddings WHERE food_id = ?`, foodID).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get text hash: %w", err)
	}
	return hash, nil
}

// Similarity scores every stored embedding against the query, best first.
// Foods listed in excludeIDs are skipped.
func (r *VectorRepository) Similarity(ctx context.Context, queryEmbedding []float32, excludeIDs []string) ([]Scored, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT food_id, embedding FROM food_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all embeddings: %w", err)
	}
	defer rows.Close()

	excludeMap := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excludeMap[id] = struct{}{}
	}

	var scored []Scored
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if _, excluded := excludeMap[id]; excluded {
			continue
		}

		embed, err := byteSliceToFloat32Slice(raw)
		if err != nil {
			log.Printf("Warning: Failed to convert embedding for food ID %s: %v", id, err)
			continue
		}
		scored = append(scored, Scored{ID: id, Score: cosineSimilarity(queryEmbedding, embed)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}

	slices.SortStableFunc(scored, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return scored, nil
}

// FindSimilar returns the identifiers of the limit most similar foods.
func (r *VectorRepository) FindSimilar(ctx context.Context, queryEmbedding []float32, limit int, excludeIDs []string) ([]string, error) {
	scored, err := r.Similarity(ctx, queryEmbedding, excludeIDs)
	if err != nil {
		return nil, err
	}
	limit = min(limit, len(scored))
	result := make([]string, 0, limit)
	for _, s := range scored[:limit] {
		result = append(result, s.ID)
	}
	return result, nil
}

// float32SliceToByteSlice converts a slice of float32 to a byte slice.
func float32SliceToByteSlice(floats []float32) ([]byte, error) {
	if len(floats) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	buf := make([]byte, 4*len(floats)) // 4 bytes per float32
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(f))
	}
	return buf, nil
}

// byteSliceToFloat32Slice converts a byte slice to a slice of float32.
func byteSliceToFloat32Slice(bytes []byte) ([]float32, error) {
	if len(bytes) == 0 {
		return nil, nil
	}
	if len(bytes)%4 != 0 {
		return nil, fmt.Errorf("byte slice length is not a multiple of 4")
	}
	floats := make([]float32, len(bytes)/4)
	for i := 0; i < len(bytes)/4; i++ {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(bytes[i*4 : (i+1)*4]))
	}
	return floats, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
