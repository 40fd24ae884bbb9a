package food

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"

	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/swap"
)

// DefaultMealBudgets are the kcal targets used by the remaining-budget mode.
var DefaultMealBudgets = map[planner.MealType]float64{
	planner.Breakfast: 450,
	planner.Lunch:     650,
	planner.Dinner:    600,
}

// Ranker ranks catalog foods as substitutes. It implements swap.Ranker.
type Ranker struct {
	repo    *Repository
	vectors VectorStore
	embed   llm.EmbeddingGenerator
	limit   int
	budgets map[planner.MealType]float64
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithEmbeddings enables semantic matching of free-text queries.
func WithEmbeddings(vectors VectorStore, embed llm.EmbeddingGenerator) RankerOption {
	return func(r *Ranker) {
		r.vectors = vectors
		r.embed = embed
	}
}

// WithLimit sets the maximum number of options returned.
func WithLimit(n int) RankerOption {
	return func(r *Ranker) { r.limit = n }
}

// WithMealBudgets overrides the per-meal kcal budgets.
func WithMealBudgets(budgets map[planner.MealType]float64) RankerOption {
	return func(r *Ranker) { r.budgets = budgets }
}

// NewRanker creates a Ranker over the catalog.
func NewRanker(repo *Repository, opts ...RankerOption) *Ranker {
	r := &Ranker{repo: repo, limit: 5, budgets: DefaultMealBudgets}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ swap.Ranker = (*Ranker)(nil)

type candidate struct {
	food  Food
	score float64
}

// FetchOptions returns up to limit options, best first.
func (r *Ranker) FetchOptions(ctx context.Context, q swap.Query) ([]swap.Option, error) {
	meal := q.Plan.Meal(q.MealType)
	inMeal := make([]string, 0, len(meal))
	for _, item := range meal {
		inMeal = append(inMeal, item.Food.ID)
	}
	known, err := r.repo.GetByIDs(ctx, inMeal)
	if err != nil {
		return nil, err
	}

	pool, err := r.repo.List(ctx, inMeal)
	if err != nil {
		return nil, err
	}
	pool = filter(pool, q.Filters)
	if len(pool) == 0 {
		return nil, nil
	}

	relevance := r.relevance(ctx, q.Filters.Query, pool)

	if q.ItemID == "" {
		return r.wholeMeal(q, meal, known, pool, relevance), nil
	}

	index, err := mutation.IndexOf(meal, q.ItemID)
	if err != nil {
		return nil, err
	}
	item := meal[index]
	original, ok := known[item.Food.ID]
	var ref *Food
	if ok {
		ref = &original
	}

	var target float64
	switch q.Mode {
	case swap.ModeRemaining:
		target = r.budget(q.MealType)
		for i, other := range meal {
			if i != index {
				target -= energyOf(other, known)
			}
		}
	default:
		target = energyOf(item, known) * q.Sizing / 100
	}

	ranked := rank(pool, ref, relevance)
	options := make([]swap.Option, 0, r.limit)
	for _, c := range ranked[:min(r.limit, len(ranked))] {
		qty := c.food.QuantityFor(target)
		options = append(options, swap.Option{
			Label: fmt.Sprintf("%s (%s)", c.food.Name, formatQuantity(qty, c.food.Unit)),
			Items: []planner.PlanItem{{Food: c.food.Ref(), Quantity: qty, Unit: c.food.Unit}},
			Score: c.score,
		})
	}
	return options, nil
}

// wholeMeal builds options with one food per current slot. An empty meal is
// treated as a single slot.
func (r *Ranker) wholeMeal(q swap.Query, meal []planner.PlanItem, known map[string]Food, pool []Food, relevance map[string]float64) []swap.Option {
	type slot struct {
		ref    *Food
		energy float64
	}
	slots := make([]slot, 0, max(1, len(meal)))
	var total float64
	for _, item := range meal {
		s := slot{energy: energyOf(item, known)}
		if f, ok := known[item.Food.ID]; ok {
			s.ref = &f
		}
		total += s.energy
		slots = append(slots, s)
	}
	if len(slots) == 0 {
		slots = append(slots, slot{})
	}

	mealTarget := r.budget(q.MealType)
	if q.Mode != swap.ModeRemaining {
		base := total
		if base == 0 {
			base = mealTarget
		}
		mealTarget = base * q.Sizing / 100
	}

	ranked := make([][]candidate, len(slots))
	for i, s := range slots {
		ranked[i] = rank(pool, s.ref, relevance)
	}

	var options []swap.Option
	seen := make(map[string]bool)
	for offset := 0; offset < len(pool) && len(options) < r.limit; offset++ {
		used := make(map[string]bool)
		var items []planner.PlanItem
		var names []string
		var score float64
		for i, s := range slots {
			share := 1 / float64(len(slots))
			if total > 0 {
				share = s.energy / total
			}
			c, ok := pick(ranked[i], offset, used)
			if !ok {
				items = nil
				break
			}
			used[c.food.ID] = true
			qty := c.food.QuantityFor(mealTarget * share)
			items = append(items, planner.PlanItem{Food: c.food.Ref(), Quantity: qty, Unit: c.food.Unit})
			names = append(names, c.food.Name)
			score += c.score
		}
		if len(items) == 0 {
			continue
		}
		label := strings.Join(names, " + ")
		if seen[label] {
			continue
		}
		seen[label] = true
		options = append(options, swap.Option{Label: label, Items: items, Score: score / float64(len(items))})
	}
	return options
}

// pick returns the first candidate at or after offset that is not used yet.
func pick(ranked []candidate, offset int, used map[string]bool) (candidate, bool) {
	for i := offset; i < len(ranked); i++ {
		if !used[ranked[i].food.ID] {
			return ranked[i], true
		}
	}
	return candidate{}, false
}

func (r *Ranker) budget(mt planner.MealType) float64 {
	if b, ok := r.budgets[mt]; ok {
		return b
	}
	return DefaultMealBudgets[mt]
}

// relevance scores foods against a free-text query in [0, 1]. Embeddings are
// used when configured; otherwise words are matched against the food text.
func (r *Ranker) relevance(ctx context.Context, query string, pool []Food) map[string]float64 {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if r.embed != nil && r.vectors != nil {
		scores, err := r.semantic(ctx, query)
		if err == nil {
			return scores
		}
		log.Printf("food: semantic search failed, falling back to keywords: %v", err)
	}

	words := strings.Fields(strings.ToLower(query))
	scores := make(map[string]float64, len(pool))
	for _, f := range pool {
		text := strings.ToLower(f.Name + " " + f.Description + " " + strings.Join(f.Categories, " "))
		hits := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				hits++
			}
		}
		scores[f.ID] = float64(hits) / float64(len(words))
	}
	return scores
}

func (r *Ranker) semantic(ctx context.Context, query string) (map[string]float64, error) {
	embedding, err := r.embed.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := r.vectors.Similarity(ctx, embedding, nil)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(scored))
	for _, s := range scored {
		scores[s.ID] = max(0, min(1, s.Score))
	}
	return scores, nil
}

// rank orders the pool by query relevance, then by likeness to ref.
func rank(pool []Food, ref *Food, relevance map[string]float64) []candidate {
	out := make([]candidate, 0, len(pool))
	for _, f := range pool {
		score := 0.6 * relevance[f.ID]
		if ref != nil {
			if f.HasCategory(ref.Categories) {
				score += 0.3
			}
			if ref.DishType != "" && strings.EqualFold(f.DishType, ref.DishType) {
				score += 0.1
			}
		}
		out = append(out, candidate{food: f, score: score})
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.food.Name, b.food.Name)
	})
	return out
}

func filter(pool []Food, f swap.Filters) []Food {
	out := pool[:0:0]
	for _, food := range pool {
		if len(f.Categories) > 0 && !food.HasCategory(f.Categories) {
			continue
		}
		if f.DishType != "" && !strings.EqualFold(food.DishType, f.DishType) {
			continue
		}
		out = append(out, food)
	}
	return out
}

func energyOf(item planner.PlanItem, known map[string]Food) float64 {
	f, ok := known[item.Food.ID]
	if !ok {
		return 0
	}
	return f.Energy(item.Quantity)
}

func formatQuantity(qty float64, unit string) string {
	s := strconv.FormatFloat(qty, 'f', -1, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}
