package mutation

import (
	"meal-plan-assistant/internal/planner"
)

// Location addresses a position inside a day plan.
type Location struct {
	Meal  planner.MealType
	Index int
}

// MoveItem moves an item between two meal lists, possibly of two different
// plans. When both ends name the same list of the same plan it degrades to
// Reorder, with the destination clamped to the last valid position.
func MoveItem(src *planner.DayPlan, from Location, dst *planner.DayPlan, to Location) error {
	if src == dst && from.Meal == to.Meal {
		list := src.Meal(from.Meal)
		if err := checkIndex(list, from.Index); err != nil {
			return err
		}
		target := max(0, min(to.Index, len(list)-1))
		out, err := Reorder(list, from.Index, target)
		if err != nil {
			return err
		}
		src.SetMeal(from.Meal, out)
		return nil
	}

	newSource, newDest, err := Move(src.Meal(from.Meal), dst.Meal(to.Meal), from.Index, to.Index)
	if err != nil {
		return err
	}
	src.SetMeal(from.Meal, newSource)
	dst.SetMeal(to.Meal, newDest)
	return nil
}

// IndexOf returns the position of an item within a meal list, or ErrMissingTarget.
func IndexOf(list []planner.PlanItem, itemID string) (int, error) {
	for i, item := range list {
		if item.ID == itemID {
			return i, nil
		}
	}
	return -1, ErrMissingTarget
}
