package food

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"meal-plan-assistant/internal/database"
	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/swap"
)

// --- Mocks ---

type mockEmbedder struct {
	calls       int
	shouldError bool
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.shouldError {
		return nil, errors.New("embedding error")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fixedVectors struct {
	scores []llm.Scored
}

func (f *fixedVectors) Save(ctx context.Context, foodID string, embedding []float32, textHash string) error {
	return nil
}

func (f *fixedVectors) TextHash(ctx context.Context, foodID string) (string, error) {
	return "", nil
}

func (f *fixedVectors) Similarity(ctx context.Context, query []float32, excludeIDs []string) ([]llm.Scored, error) {
	return f.scores, nil
}

// --- Helpers ---

var catalog = []Food{
	{ID: "chicken", Name: "Chicken", Categories: []string{"protein", "meat"}, DishType: "main", Unit: "g", ServingSize: 120, EnergyPer100: 165},
	{ID: "tofu", Name: "Tofu", Categories: []string{"protein", "vegetarian"}, DishType: "main", Unit: "g", ServingSize: 150, EnergyPer100: 76},
	{ID: "salmon", Name: "Salmon", Description: "Oily fish", Categories: []string{"protein", "fish"}, DishType: "main", Unit: "g", ServingSize: 120, EnergyPer100: 208},
	{ID: "rice", Name: "Rice", Categories: []string{"grains"}, DishType: "side", Unit: "g", ServingSize: 150, EnergyPer100: 130},
	{ID: "quinoa", Name: "Quinoa", Categories: []string{"grains"}, DishType: "side", Unit: "g", ServingSize: 150, EnergyPer100: 120},
	{ID: "broccoli", Name: "Broccoli", Categories: []string{"vegetables"}, DishType: "side", Unit: "g", ServingSize: 100, EnergyPer100: 34},
}

func setupRepo(t *testing.T) (*Repository, *llm.VectorRepository) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "foods.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db.SQL)
	for _, f := range catalog {
		if err := repo.Save(context.Background(), f); err != nil {
			t.Fatalf("failed to save %s: %v", f.ID, err)
		}
	}
	return repo, llm.NewVectorRepository(db.SQL)
}

func lunchPlan() planner.DayPlan {
	return planner.DayPlan{
		PlanID: "plan-1", Owner: "u1", Date: "2024-03-04",
		Lunch: []planner.PlanItem{
			{ID: "i1", Food: planner.FoodRef{ID: "rice", Name: "Rice"}, Quantity: 150, Unit: "g"},
			{ID: "i2", Food: planner.FoodRef{ID: "chicken", Name: "Chicken"}, Quantity: 120, Unit: "g"},
		},
	}
}

func labels(options []swap.Option) []string {
	var out []string
	for _, o := range options {
		out = append(out, o.Label)
	}
	return out
}

// --- Tests ---

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	t.Run("Get", func(t *testing.T) {
		f, err := repo.Get(ctx, "salmon")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if f == nil || f.Name != "Salmon" || f.EnergyPer100 != 208 {
			t.Errorf("Unexpected food: %+v", f)
		}
		missing, err := repo.Get(ctx, "unknown")
		if err != nil || missing != nil {
			t.Errorf("Expected nil for unknown food, got %+v, %v", missing, err)
		}
	})

	t.Run("FindByName", func(t *testing.T) {
		f, err := repo.FindByName(ctx, "QUINOA")
		if err != nil {
			t.Fatalf("FindByName failed: %v", err)
		}
		if f == nil || f.ID != "quinoa" {
			t.Errorf("Expected quinoa, got %+v", f)
		}
		f, _ = repo.FindByName(ctx, "broc")
		if f == nil || f.ID != "broccoli" {
			t.Errorf("Expected partial match broccoli, got %+v", f)
		}
	})

	t.Run("ListAndCount", func(t *testing.T) {
		foods, err := repo.List(ctx, []string{"rice", "tofu"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(foods) != len(catalog)-2 {
			t.Errorf("Expected %d foods, got %d", len(catalog)-2, len(foods))
		}
		n, _ := repo.Count(ctx)
		if n != len(catalog) {
			t.Errorf("Expected count %d, got %d", len(catalog), n)
		}
	})

	t.Run("InvalidFood", func(t *testing.T) {
		if err := repo.Save(ctx, Food{ID: "x"}); err == nil {
			t.Error("Expected an error for a food without a name")
		}
	})
}

func TestRankerSingleItem(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	ranker := NewRanker(repo)

	t.Run("Percentage", func(t *testing.T) {
		options, err := ranker.FetchOptions(ctx, swap.Query{
			Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "i2",
			Filters: swap.Filters{Categories: []string{"protein"}},
			Mode:    swap.ModePercentage, Sizing: 100,
		})
		if err != nil {
			t.Fatalf("FetchOptions failed: %v", err)
		}
		if len(options) != 2 {
			t.Fatalf("Expected 2 options, got %v", labels(options))
		}
		// 120g chicken is 198 kcal.
		if options[0].Label != "Salmon (95 g)" || options[0].Items[0].Quantity != 95 {
			t.Errorf("Expected Salmon (95 g) first, got %s", options[0].Label)
		}
		if options[1].Items[0].Food.ID != "tofu" || options[1].Items[0].Quantity != 261 {
			t.Errorf("Expected 261g tofu second, got %+v", options[1].Items[0])
		}
	})

	t.Run("Remaining", func(t *testing.T) {
		options, err := ranker.FetchOptions(ctx, swap.Query{
			Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "i2",
			Filters: swap.Filters{Categories: []string{"fish"}},
			Mode:    swap.ModeRemaining, Sizing: 100,
		})
		if err != nil {
			t.Fatalf("FetchOptions failed: %v", err)
		}
		// 650 kcal lunch budget minus 195 kcal of rice.
		if len(options) != 1 || options[0].Items[0].Quantity != 219 {
			t.Errorf("Expected 219g salmon, got %v", labels(options))
		}
	})

	t.Run("KeywordQuery", func(t *testing.T) {
		options, err := ranker.FetchOptions(ctx, swap.Query{
			Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "i2",
			Filters: swap.Filters{Query: "fish"},
			Mode:    swap.ModePercentage, Sizing: 50,
		})
		if err != nil {
			t.Fatalf("FetchOptions failed: %v", err)
		}
		if options[0].Items[0].Food.ID != "salmon" {
			t.Errorf("Expected salmon first, got %v", labels(options))
		}
		for _, o := range options {
			if id := o.Items[0].Food.ID; id == "rice" || id == "chicken" {
				t.Errorf("Expected foods already in the meal to be excluded, got %s", id)
			}
		}
	})

	t.Run("SemanticQuery", func(t *testing.T) {
		semantic := NewRanker(repo, WithEmbeddings(&fixedVectors{scores: []llm.Scored{
			{ID: "tofu", Score: 0.9},
			{ID: "salmon", Score: 0.1},
		}}, &mockEmbedder{}))
		options, err := semantic.FetchOptions(ctx, swap.Query{
			Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "i2",
			Filters: swap.Filters{Query: "something light", Categories: []string{"protein"}},
			Mode:    swap.ModePercentage, Sizing: 100,
		})
		if err != nil {
			t.Fatalf("FetchOptions failed: %v", err)
		}
		if options[0].Items[0].Food.ID != "tofu" {
			t.Errorf("Expected tofu first, got %v", labels(options))
		}
	})

	t.Run("NoCandidates", func(t *testing.T) {
		options, err := ranker.FetchOptions(ctx, swap.Query{
			Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "i2",
			Filters: swap.Filters{Categories: []string{"desserts"}},
		})
		if err != nil || len(options) != 0 {
			t.Errorf("Expected no options, got %v, %v", labels(options), err)
		}
	})

	t.Run("MissingItem", func(t *testing.T) {
		_, err := ranker.FetchOptions(ctx, swap.Query{Plan: lunchPlan(), MealType: planner.Lunch, ItemID: "nope"})
		if !errors.Is(err, mutation.ErrMissingTarget) {
			t.Errorf("Expected ErrMissingTarget, got %v", err)
		}
	})
}

func TestRankerWholeMeal(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	ranker := NewRanker(repo, WithLimit(2))

	options, err := ranker.FetchOptions(ctx, swap.Query{
		Plan: lunchPlan(), MealType: planner.Lunch,
		Mode: swap.ModePercentage, Sizing: 100,
	})
	if err != nil {
		t.Fatalf("FetchOptions failed: %v", err)
	}
	got := labels(options)
	want := []string{"Quinoa + Salmon", "Broccoli + Tofu"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	for _, o := range options {
		if len(o.Items) != 2 {
			t.Errorf("Expected one food per slot, got %d", len(o.Items))
		}
	}

	t.Run("EmptyMeal", func(t *testing.T) {
		plan := lunchPlan()
		options, err := ranker.FetchOptions(ctx, swap.Query{
			Plan: plan, MealType: planner.Dinner,
			Filters: swap.Filters{DishType: "main"},
			Mode:    swap.ModeRemaining,
		})
		if err != nil {
			t.Fatalf("FetchOptions failed: %v", err)
		}
		if len(options) != 2 || len(options[0].Items) != 1 {
			t.Fatalf("Expected 2 single-item options, got %v", labels(options))
		}
	})
}

func TestIndexer(t *testing.T) {
	ctx := context.Background()
	repo, vectors := setupRepo(t)
	embed := &mockEmbedder{}
	indexer := NewIndexer(repo, vectors, embed)

	stats, err := indexer.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}
	if stats.Indexed != len(catalog) || embed.calls != len(catalog) {
		t.Errorf("Expected %d foods indexed, got %+v", len(catalog), stats)
	}

	stats, err = indexer.IndexAll(ctx)
	if err != nil {
		t.Fatalf("second IndexAll failed: %v", err)
	}
	if stats.Skipped != len(catalog) || embed.calls != len(catalog) {
		t.Errorf("Expected unchanged foods to be skipped, got %+v", stats)
	}

	emb, err := vectors.Get(ctx, "tofu")
	if err != nil || len(emb) != 3 {
		t.Errorf("Expected stored embedding, got %v, %v", emb, err)
	}

	t.Run("EmbeddingFailure", func(t *testing.T) {
		failing := NewIndexer(repo, vectors, &mockEmbedder{shouldError: true})
		updated := catalog[0]
		updated.Description = "Lean white meat"
		if err := repo.Save(ctx, updated); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		stats, err := failing.IndexAll(ctx)
		if err != nil {
			t.Fatalf("IndexAll failed: %v", err)
		}
		if stats.Failed != 1 {
			t.Errorf("Expected 1 failure, got %+v", stats)
		}
	})
}

func TestVectorSimilarity(t *testing.T) {
	ctx := context.Background()
	_, vectors := setupRepo(t)
	_ = vectors.Save(ctx, "a", []float32{1, 0}, "h1")
	_ = vectors.Save(ctx, "b", []float32{0, 1}, "h2")
	_ = vectors.Save(ctx, "c", []float32{0.7, 0.7}, "h3")

	ids, err := vectors.FindSimilar(ctx, []float32{1, 0.1}, 2, []string{"a"})
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if fmt.Sprint(ids) != "[c b]" {
		t.Errorf("Expected [c b], got %v", ids)
	}
	hash, _ := vectors.TextHash(ctx, "b")
	if hash != "h2" {
		t.Errorf("Expected hash h2, got %q", hash)
	}
}
