package llm

import (
	"context"
	"fmt"
	"strings"

	"meal-plan-assistant/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	geminiChatModel      = "gemini-1.5-flash"
	geminiEmbeddingModel = "text-embedding-004"
)

// GeminiClient is a client for the Google Gemini API. It generates chat
// replies and text embeddings.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// GenerateContent sends a prompt to the Gemini model and returns the generated text.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	model := c.client.GenerativeModel(geminiChatModel)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}

	var sb strings.Builder
	usage := appendResponse(&sb, resp)
	if sb.Len() == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}
	return ContentResponse{Content: sb.String(), Usage: usage}, nil
}

// Chat streams a reply to the last message of history and assembles it.
func (c *GeminiClient) Chat(ctx context.Context, system string, history []Message) (ContentResponse, error) {
	if len(history) == 0 {
		return ContentResponse{}, fmt.Errorf("chat history is empty")
	}

	model := c.client.GenerativeModel(geminiChatModel)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	for _, m := range history[:len(history)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	var sb strings.Builder
	var usage shared.TokenUsage
	iter := cs.SendMessageStream(ctx, genai.Text(history[len(history)-1].Content))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return ContentResponse{}, fmt.Errorf("failed to stream chat response: %w", err)
		}
		if u := appendResponse(&sb, resp); !u.Empty() {
			usage = u
		}
	}
	if sb.Len() == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}
	return ContentResponse{Content: sb.String(), Usage: usage}, nil
}

// GenerateEmbedding embeds text with the Gemini embedding model.
func (c *GeminiClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(geminiEmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return res.Embedding.Values, nil
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// appendResponse writes the text parts of resp to sb and returns its usage.
func appendResponse(sb *strings.Builder, resp *genai.GenerateContentResponse) shared.TokenUsage {
	if resp == nil {
		return shared.TokenUsage{}
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	usage := shared.TokenUsage{Model: geminiChatModel}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return usage
}
