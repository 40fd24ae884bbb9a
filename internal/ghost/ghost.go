// Package ghost is a client for the Ghost Content API, where the food
// articles shown by the food info lookup are published.
package ghost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Post represents a single article from the Ghost API.
type Post struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	HTML      string `json:"html"`
	Excerpt   string `json:"custom_excerpt"`
	URL       string `json:"url"`
	UpdatedAt string `json:"updated_at"`
}

// PostsResponse is the top-level structure of the Ghost API response for posts.
type PostsResponse struct {
	Posts []Post `json:"posts"`
}

// Client is an interface for a Ghost Content API client.
type Client interface {
	// FetchPosts returns posts matching a Ghost filter expression such as
	// "tag:quinoa". An empty filter returns the latest posts.
	FetchPosts(ctx context.Context, filter string, limit int) ([]Post, error)
}

// ghostClient is the concrete implementation of the Ghost API client.
type ghostClient struct {
	httpClient *http.Client
	baseURL    string
	contentKey string
}

// NewClient creates a new Ghost API client.
func NewClient(baseURL, contentKey string) Client {
	return &ghostClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		contentKey: contentKey,
	}
}

// FetchPosts fetches posts from the Ghost Content API.
func (c *ghostClient) FetchPosts(ctx context.Context, filter string, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("key", c.contentKey)
	if filter != "" {
		q.Set("filter", filter)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := fmt.Sprintf("%s/ghost/api/v3/content/posts/?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content api error: status %d", resp.StatusCode)
	}

	var postsResponse PostsResponse
	if err := json.NewDecoder(resp.Body).Decode(&postsResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return postsResponse.Posts, nil
}
