// Package food holds the food catalog and the local substitute ranker.
package food

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"meal-plan-assistant/internal/planner"
)

// Food is a catalog entry.
type Food struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories"`
	DishType    string   `json:"dish_type,omitempty"`
	// Unit is the unit quantities are expressed in, usually "g" or "ml".
	Unit string `json:"unit"`
	// ServingSize is the default quantity in Unit.
	ServingSize float64 `json:"serving_size"`
	// EnergyPer100 is kcal per 100 Unit.
	EnergyPer100 float64 `json:"energy_per_100"`
	// ArticleTag links the food to a Ghost article, if any.
	ArticleTag string `json:"article_tag,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Ref returns the plan reference of the food.
func (f Food) Ref() planner.FoodRef {
	return planner.FoodRef{ID: f.ID, Name: f.Name}
}

// Energy is the kcal of quantity units of the food.
func (f Food) Energy(quantity float64) float64 {
	return f.EnergyPer100 * quantity / 100
}

// QuantityFor returns the quantity that provides kcal, falling back to the
// serving size when the energy density is unknown.
func (f Food) QuantityFor(kcal float64) float64 {
	if f.EnergyPer100 <= 0 || kcal <= 0 {
		return f.ServingSize
	}
	q := kcal * 100 / f.EnergyPer100
	// Whole units read better in a plan.
	return float64(int(q + 0.5))
}

// HasCategory reports whether the food is in any of the given categories.
func (f Food) HasCategory(categories []string) bool {
	for _, want := range categories {
		for _, c := range f.Categories {
			if strings.EqualFold(c, want) {
				return true
			}
		}
	}
	return false
}

// ToEmbeddingText is the text embedded for semantic search.
func (f Food) ToEmbeddingText() string {
	return fmt.Sprintf("Name: %s\nCategories: %s\nDish type: %s\nDescription: %s",
		f.Name, strings.Join(f.Categories, ", "), f.DishType, f.Description)
}

// TextHash identifies the current embedding text.
func (f Food) TextHash() string {
	sum := sha256.Sum256([]byte(f.ToEmbeddingText()))
	return hex.EncodeToString(sum[:])
}

// Validate checks the fields every stored food needs.
func (f Food) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("food has no id")
	}
	if f.Name == "" {
		return fmt.Errorf("food %s has no name", f.ID)
	}
	if f.EnergyPer100 < 0 || f.ServingSize < 0 {
		return fmt.Errorf("food %s has negative nutrition values", f.ID)
	}
	return nil
}
