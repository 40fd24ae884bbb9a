// Package planapi is an HTTP client for a remote plan service. It stores day
// plans and applies swaps on behalf of the coordinator when the plans live
// outside the local database.
package planapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"meal-plan-assistant/internal/planner"
)

// SwapRequest is the body of a swap apply call.
type SwapRequest struct {
	TargetItemID string           `json:"target_item_id"`
	Replacement  planner.PlanItem `json:"replacement"`
}

// Client talks to the plan service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	now        func() time.Time
}

// NewClient creates a new plan service client. apiKey has the form "id:secret"
// where secret is hex encoded.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		now:        time.Now,
	}
}

// Load fetches the plan for owner and date. A 404 yields an empty plan.
func (c *Client) Load(ctx context.Context, owner, date string) (planner.DayPlan, error) {
	endpoint := fmt.Sprintf("%s/plans/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(date))
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to load plan %s/%s: %w", owner, date, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return planner.NewDayPlan(owner, date), nil
	}
	if resp.StatusCode != http.StatusOK {
		return planner.DayPlan{}, fmt.Errorf("failed to load plan %s/%s: %s", owner, date, statusError(resp))
	}

	var plan planner.DayPlan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to decode plan: %w", err)
	}
	plan.Owner = owner
	plan.Date = date
	return plan, nil
}

// Commit stores a full plan snapshot. A non-2xx status or success=false in the
// body is a failed commit.
func (c *Client) Commit(ctx context.Context, plan planner.DayPlan) (planner.CommitResult, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return planner.CommitResult{}, fmt.Errorf("failed to marshal plan: %w", err)
	}

	endpoint := fmt.Sprintf("%s/plans/%s/%s", c.baseURL, url.PathEscape(plan.Owner), url.PathEscape(plan.Date))
	resp, err := c.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return planner.CommitResult{Data: plan}, fmt.Errorf("failed to commit plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return planner.CommitResult{Data: plan}, fmt.Errorf("failed to commit plan: %s", statusError(resp))
	}

	var result planner.CommitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return planner.CommitResult{Data: plan}, fmt.Errorf("failed to decode commit result: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("failed to commit plan: rejected by plan service")
	}
	return result, nil
}

// ApplySwap replaces one item of a stored plan and returns the updated plan.
func (c *Client) ApplySwap(ctx context.Context, planID, targetItemID string, replacement planner.PlanItem) (planner.DayPlan, error) {
	body, err := json.Marshal(SwapRequest{TargetItemID: targetItemID, Replacement: replacement})
	if err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to marshal swap: %w", err)
	}

	endpoint := fmt.Sprintf("%s/plans/%s/swap", c.baseURL, url.PathEscape(planID))
	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to apply swap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return planner.DayPlan{}, fmt.Errorf("failed to apply swap: %s", statusError(resp))
	}

	var result planner.CommitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to decode swap result: %w", err)
	}
	if !result.Success {
		return planner.DayPlan{}, fmt.Errorf("failed to apply swap: rejected by plan service")
	}
	return result.Data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		token, err := c.createToken()
		if err != nil {
			return nil, fmt.Errorf("failed to create auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// createToken signs a short-lived HS256 token with the key id in its header.
func (c *Client) createToken() (string, error) {
	parts := strings.Split(c.apiKey, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid plan api key format")
	}
	id, secretHex := parts[0], parts[1]

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "/plans/",
	})
	token.Header["kid"] = id

	return token.SignedString(secret)
}

func statusError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
}
