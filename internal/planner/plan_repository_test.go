package planner_test

import (
	"context"
	"path/filepath"
	"testing"

	"meal-plan-assistant/internal/database"
	"meal-plan-assistant/internal/planner"
)

func newTestRepo(t *testing.T) *planner.PlanRepository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return planner.NewPlanRepository(db.SQL)
}

func TestPlanRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	t.Run("Load-Empty", func(t *testing.T) {
		plan, err := repo.Load(ctx, "u1", "2024-03-04")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if plan.PlanID == "" {
			t.Error("Expected a fresh plan id for an empty plan")
		}
		if plan.ItemCount() != 0 {
			t.Errorf("Expected empty plan, got %d items", plan.ItemCount())
		}
	})

	t.Run("Commit-And-Load", func(t *testing.T) {
		plan, _ := repo.Load(ctx, "u1", "2024-03-05")
		plan.Breakfast = []planner.PlanItem{
			planner.NewItem(planner.FoodRef{ID: "f1", Name: "Eggs"}, 2, "pc"),
		}

		res, err := repo.Commit(ctx, plan)
		if err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if !res.Success {
			t.Fatal("Expected commit success")
		}
		if res.Data.Version != 1 {
			t.Errorf("Expected version 1, got %d", res.Data.Version)
		}

		loaded, err := repo.Load(ctx, "u1", "2024-03-05")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(loaded.Breakfast) != 1 || loaded.Breakfast[0].Food.Name != "Eggs" {
			t.Errorf("Expected stored breakfast [Eggs], got %+v", loaded.Breakfast)
		}
		if loaded.PlanID != plan.PlanID {
			t.Errorf("Expected plan id %s, got %s", plan.PlanID, loaded.PlanID)
		}

		res, err = repo.Commit(ctx, loaded)
		if err != nil {
			t.Fatalf("Second commit failed: %v", err)
		}
		if res.Data.Version != 2 {
			t.Errorf("Expected version 2, got %d", res.Data.Version)
		}

		byID, err := repo.GetByPlanID(ctx, plan.PlanID)
		if err != nil || byID == nil {
			t.Fatalf("GetByPlanID failed: %v", err)
		}
		if byID.Date != "2024-03-05" {
			t.Errorf("Expected date 2024-03-05, got %s", byID.Date)
		}
	})

	t.Run("Commit-InvalidDate", func(t *testing.T) {
		_, err := repo.Commit(ctx, planner.DayPlan{Owner: "u1", Date: "tomorrow"})
		if err == nil {
			t.Fatal("Expected an error for invalid date, got nil")
		}
	})

	t.Run("ListRecent", func(t *testing.T) {
		plans, err := repo.ListRecentByOwner(ctx, "u1", 5)
		if err != nil {
			t.Fatalf("ListRecentByOwner failed: %v", err)
		}
		if len(plans) != 1 {
			t.Errorf("Expected 1 stored plan, got %d", len(plans))
		}
	})
}
