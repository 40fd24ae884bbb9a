package food

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/shared"
)

//go:embed enricher_prompt.md
var enricherPrompt string

// Enricher completes sparse catalog entries with an LLM.
type Enricher struct {
	textGen llm.TextGenerator
}

// NewEnricher creates an Enricher.
func NewEnricher(textGen llm.TextGenerator) *Enricher {
	return &Enricher{textGen: textGen}
}

// NeedsEnrichment reports whether the food lacks fields the ranker relies on.
func NeedsEnrichment(f Food) bool {
	return f.Description == "" || len(f.Categories) == 0 || f.EnergyPer100 == 0
}

type enrichment struct {
	Description  string   `json:"description"`
	Categories   []string `json:"categories"`
	DishType     string   `json:"dish_type"`
	Unit         string   `json:"unit"`
	ServingSize  float64  `json:"serving_size"`
	EnergyPer100 float64  `json:"energy_per_100"`
}

// Enrich fills the empty fields of f. Fields already set are kept.
func (e *Enricher) Enrich(ctx context.Context, f Food) (Food, shared.AgentMeta, error) {
	start := time.Now()
	meta := shared.AgentMeta{AgentName: "Enricher"}

	prompt, err := buildEnricherPrompt(f)
	if err != nil {
		return f, meta, err
	}

	llmResp, err := e.textGen.GenerateContent(ctx, prompt)
	if err != nil {
		return f, meta, fmt.Errorf("failed to get LLM response: %w", err)
	}
	meta.Usage = llmResp.Usage
	meta.Latency = time.Since(start)

	var out enrichment
	if err := json.Unmarshal([]byte(llmResp.Content), &out); err != nil {
		return f, meta, fmt.Errorf("failed to unmarshal LLM response: %w", err)
	}

	if f.Description == "" {
		f.Description = out.Description
	}
	if len(f.Categories) == 0 {
		f.Categories = out.Categories
	}
	if f.DishType == "" {
		f.DishType = out.DishType
	}
	if f.Unit == "" {
		f.Unit = out.Unit
	}
	if f.ServingSize == 0 && out.ServingSize > 0 {
		f.ServingSize = out.ServingSize
	}
	if f.EnergyPer100 == 0 && out.EnergyPer100 > 0 {
		f.EnergyPer100 = out.EnergyPer100
	}
	return f, meta, f.Validate()
}

func buildEnricherPrompt(f Food) (string, error) {
	tmpl, err := template.New("enricher").Parse(enricherPrompt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, f); err != nil {
		return "", err
	}

	return buf.String(), nil
}
