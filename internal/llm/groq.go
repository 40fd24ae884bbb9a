package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meal-plan-assistant/internal/config"
	"meal-plan-assistant/internal/shared"
)

const (
	groqAPIURL       = "https://api.groq.com/openai/v1/chat/completions"
	DefaultGroqModel = "llama-3.3-70b-versatile"
)

// GroqClient is a client for the Groq chat completions API.
type GroqClient struct {
	apiKey     string
	model      string
	url        string
	stream     bool
	httpClient *http.Client
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(cfg *config.Config) *GroqClient {
	model := cfg.GroqModel
	if model == "" {
		model = DefaultGroqModel
	}
	return &GroqClient{
		apiKey: cfg.GroqAPIKey,
		model:  model,
		url:    groqAPIURL,
		stream: cfg.GroqStream,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithURL points the client at another OpenAI-compatible endpoint.
func (c *GroqClient) WithURL(url string) *GroqClient {
	c.url = url
	return c
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateContent sends a single prompt and expects a JSON object back.
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	reqBody := map[string]interface{}{
		"model":           c.model,
		"messages":        []groqMessage{{Role: "user", Content: prompt}},
		"temperature":     0.1,
		"response_format": map[string]string{"type": "json_object"},
	}
	return c.complete(ctx, reqBody)
}

// Chat answers the last message of history. When streaming is enabled the
// response is read as server-sent events and assembled.
func (c *GroqClient) Chat(ctx context.Context, system string, history []Message) (ContentResponse, error) {
	messages := make([]groqMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, groqMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		messages = append(messages, groqMessage{Role: string(m.Role), Content: m.Content})
	}

	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.2,
	}
	if c.stream {
		reqBody["stream"] = true
		reqBody["stream_options"] = map[string]bool{"include_usage": true}
		return c.completeStream(ctx, reqBody)
	}
	return c.complete(ctx, reqBody)
}

func (c *GroqClient) send(ctx context.Context, reqBody map[string]interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func (c *GroqClient) complete(ctx context.Context, reqBody map[string]interface{}) (ContentResponse, error) {
	resp, err := c.send(ctx, reqBody)
	if err != nil {
		return ContentResponse{}, err
	}
	defer resp.Body.Close()

	var groqResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage groqUsage `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(groqResp.Choices) == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	return ContentResponse{
		Content: groqResp.Choices[0].Message.Content,
		Usage:   c.usage(groqResp.Usage),
	}, nil
}

func (c *GroqClient) completeStream(ctx context.Context, reqBody map[string]interface{}) (ContentResponse, error) {
	resp, err := c.send(ctx, reqBody)
	if err != nil {
		return ContentResponse{}, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	var usage groqUsage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *groqUsage `json:"usage"`
			XGroq *struct {
				Usage *groqUsage `json:"usage"`
			} `json:"x_groq"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return ContentResponse{}, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		} else if chunk.XGroq != nil && chunk.XGroq.Usage != nil {
			usage = *chunk.XGroq.Usage
		}
	}
	if err := scanner.Err(); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to read stream: %w", err)
	}
	if content.Len() == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	return ContentResponse{Content: content.String(), Usage: c.usage(usage)}, nil
}

func (c *GroqClient) usage(u groqUsage) shared.TokenUsage {
	return shared.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Model:            c.model,
	}
}
