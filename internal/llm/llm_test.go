package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"meal-plan-assistant/internal/config"
	"meal-plan-assistant/internal/database"
)

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedEmbeddingGenerator(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "embeddings.json")
	real := &countingEmbedder{}

	cached, err := NewCachedEmbeddingGenerator(real, path)
	if err != nil {
		t.Fatalf("NewCachedEmbeddingGenerator failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := cached.GenerateEmbedding(ctx, "oats"); err != nil {
			t.Fatalf("GenerateEmbedding failed: %v", err)
		}
	}
	if real.calls.Load() != 1 {
		t.Errorf("Expected 1 API call, got %d", real.calls.Load())
	}
	if err := cached.SaveCache(); err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}

	t.Run("ReloadFromFile", func(t *testing.T) {
		fresh := &countingEmbedder{}
		reloaded, err := NewCachedEmbeddingGenerator(fresh, path)
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if reloaded.Len() != 1 {
			t.Errorf("Expected 1 cached embedding, got %d", reloaded.Len())
		}
		emb, err := reloaded.GenerateEmbedding(ctx, "oats")
		if err != nil {
			t.Fatalf("GenerateEmbedding failed: %v", err)
		}
		if fresh.calls.Load() != 0 || emb[0] != 4 {
			t.Errorf("Expected cached vector without API call, got %v after %d calls", emb, fresh.calls.Load())
		}
	})

	t.Run("ErrorNotCached", func(t *testing.T) {
		failing := &countingEmbedder{err: errors.New("quota")}
		c, err := NewCachedEmbeddingGenerator(failing, filepath.Join(t.TempDir(), "e.json"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.GenerateEmbedding(ctx, "rice"); err == nil {
			t.Error("Expected error from failing generator")
		}
		if c.Len() != 0 {
			t.Errorf("Expected empty cache, got %d", c.Len())
		}
	})
}

func TestVectorRepository(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	repo := NewVectorRepository(db.SQL)

	vectors := map[string][]float32{
		"oats":   {1, 0, 0},
		"muesli": {0.9, 0.1, 0},
		"steak":  {0, 0, 1},
	}
	for id, v := range vectors {
		if err := repo.Save(ctx, id, v, "hash-"+id); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	got, err := repo.Get(ctx, "muesli")
	if err != nil || len(got) != 3 || got[0] != 0.9 {
		t.Errorf("Expected muesli vector, got %v (%v)", got, err)
	}
	if missing, err := repo.Get(ctx, "tofu"); err != nil || missing != nil {
		t.Errorf("Expected nil for missing embedding, got %v (%v)", missing, err)
	}
	if hash, _ := repo.TextHash(ctx, "steak"); hash != "hash-steak" {
		t.Errorf("Expected hash-steak, got %q", hash)
	}

	ids, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 2, []string{"oats"})
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "muesli" || ids[1] != "steak" {
		t.Errorf("Expected [muesli steak], got %v", ids)
	}
}

func TestGroqClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Chat", func(t *testing.T) {
		var got struct {
			Model    string        `json:"model"`
			Messages []groqMessage `json:"messages"`
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer key" {
				t.Errorf("Expected bearer key, got %q", r.Header.Get("Authorization"))
			}
			json.NewDecoder(r.Body).Decode(&got)
			fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"type\":\"message\"}"}}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "key"}).WithURL(server.URL)
		resp, err := client.Chat(ctx, "system prompt", []Message{{Role: RoleUser, Content: "hi"}})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != `{"type":"message"}` {
			t.Errorf("Unexpected content %q", resp.Content)
		}
		if resp.Usage.TotalTokens != 15 || resp.Usage.Model != DefaultGroqModel {
			t.Errorf("Unexpected usage %+v", resp.Usage)
		}
		if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
			t.Errorf("Unexpected request messages %+v", got.Messages)
		}
	})

	t.Run("Stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Moved \"}}]}\n\n")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"eggs\"}}]}\n\n")
			fmt.Fprint(w, "data: {\"choices\":[],\"x_groq\":{\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "key", GroqStream: true}).WithURL(server.URL)
		resp, err := client.Chat(ctx, "", []Message{{Role: RoleUser, Content: "move eggs"}})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != "Moved eggs" || resp.Usage.TotalTokens != 7 {
			t.Errorf("Unexpected response %+v", resp)
		}
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "key"}).WithURL(server.URL)
		_, err := client.GenerateContent(ctx, "prompt")
		if err == nil || !strings.Contains(err.Error(), "status=429") {
			t.Errorf("Expected status 429 error, got %v", err)
		}
	})
}
