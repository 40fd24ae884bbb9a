package planner

import (
	"reflect"
	"testing"
)

func samplePlan() DayPlan {
	return DayPlan{
		PlanID: "plan-1",
		Owner:  "u1",
		Date:   "2024-03-04",
		Breakfast: []PlanItem{
			{ID: "b1", Food: FoodRef{ID: "f-eggs", Name: "Eggs"}, Quantity: 2, Unit: "pc"},
			{ID: "b2", Food: FoodRef{ID: "f-bread", Name: "Bread"}, Quantity: 1, Unit: "slice"},
		},
		Lunch: []PlanItem{
			{ID: "l1", Food: FoodRef{ID: "f-rice", Name: "Rice"}, Quantity: 150, Unit: "g"},
		},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	plan := samplePlan()
	clone := plan.Clone()

	if !reflect.DeepEqual(plan, clone) {
		t.Fatalf("Expected clone to equal original")
	}

	clone.Breakfast[0].Food.Name = "Toast"
	clone.Lunch = append(clone.Lunch, PlanItem{ID: "l2"})

	if plan.Breakfast[0].Food.Name != "Eggs" {
		t.Errorf("Expected original breakfast to be untouched, got '%s'", plan.Breakfast[0].Food.Name)
	}
	if len(plan.Lunch) != 1 {
		t.Errorf("Expected original lunch length 1, got %d", len(plan.Lunch))
	}
	if clone.Dinner != nil {
		t.Errorf("Expected nil dinner to stay nil after clone")
	}
}

func TestLocate(t *testing.T) {
	plan := samplePlan()

	mt, idx, ok := plan.Locate("b2")
	if !ok || mt != Breakfast || idx != 1 {
		t.Errorf("Expected b2 at breakfast[1], got %s[%d] ok=%v", mt, idx, ok)
	}

	if _, _, ok := plan.Locate("missing"); ok {
		t.Error("Expected missing item not to be found")
	}
}

func TestParseMealType(t *testing.T) {
	for _, s := range []string{"breakfast", "lunch", "dinner"} {
		if _, ok := ParseMealType(s); !ok {
			t.Errorf("Expected '%s' to parse", s)
		}
	}
	for _, s := range []string{"Breakfast", "snack", ""} {
		if _, ok := ParseMealType(s); ok {
			t.Errorf("Expected '%s' to be rejected", s)
		}
	}
}

func TestNewItemIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewItemID()
		if _, dup := seen[id]; dup {
			t.Fatalf("Duplicate item id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidateDate(t *testing.T) {
	if err := ValidateDate("2024-02-29"); err != nil {
		t.Errorf("Expected valid date, got %v", err)
	}
	if err := ValidateDate("2024/02/29"); err == nil {
		t.Error("Expected error for malformed date")
	}
}
