package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"meal-plan-assistant/internal/food"
)

// FoodSaver stores catalog foods.
type FoodSaver interface {
	Save(ctx context.Context, f food.Food) error
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Saved  int
	Failed int
}

// ImportFoods reads a JSON array of foods and saves each one. Invalid entries
// are logged and skipped.
func ImportFoods(ctx context.Context, repo FoodSaver, r io.Reader) (ImportStats, error) {
	var foods []food.Food
	if err := json.NewDecoder(r).Decode(&foods); err != nil {
		return ImportStats{}, fmt.Errorf("failed to decode foods: %w", err)
	}

	var stats ImportStats
	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range foods {
		if f.UpdatedAt == "" {
			f.UpdatedAt = now
		}
		if err := repo.Save(ctx, f); err != nil {
			log.Printf("Failed to import food '%s' (ID: %s): %v", f.Name, f.ID, err)
			stats.Failed++
			continue
		}
		stats.Saved++
	}
	return stats, nil
}
