// Package mutation holds the order-preserving operations on a day's item
// lists. Every function returns new slices and never modifies its input.
package mutation

import (
	"errors"
	"fmt"
	"slices"

	"meal-plan-assistant/internal/planner"
)

var (
	// ErrInvalidIndex is returned for an index outside [0, len).
	ErrInvalidIndex = errors.New("invalid index")
	// ErrNoOpRequested is returned when source and destination positions are equal.
	ErrNoOpRequested = errors.New("item is already in that position")
	// ErrMissingTarget is returned when a referenced item no longer exists in the plan.
	ErrMissingTarget = errors.New("item no longer exists in the plan")
)

func checkIndex(list []planner.PlanItem, i int) error {
	if i < 0 || i >= len(list) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, i, len(list))
	}
	return nil
}

// Reorder removes the item at from and reinserts it at to within the same list.
// When from == to the unchanged list is returned together with ErrNoOpRequested.
func Reorder(list []planner.PlanItem, from, to int) ([]planner.PlanItem, error) {
	if err := checkIndex(list, from); err != nil {
		return nil, err
	}
	if err := checkIndex(list, to); err != nil {
		return nil, err
	}
	out := slices.Clone(list)
	if from == to {
		return out, ErrNoOpRequested
	}
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item), nil
}

// Swap exchanges the items at a and b.
func Swap(list []planner.PlanItem, a, b int) ([]planner.PlanItem, error) {
	if err := checkIndex(list, a); err != nil {
		return nil, err
	}
	if err := checkIndex(list, b); err != nil {
		return nil, err
	}
	out := slices.Clone(list)
	if a == b {
		return out, ErrNoOpRequested
	}
	out[a], out[b] = out[b], out[a]
	return out, nil
}

// Move removes the item at from in source and inserts it into dest at to,
// clamped to [0, len(dest)]. source and dest must be different lists; use
// MoveItem when both ends may name the same list.
func Move(source, dest []planner.PlanItem, from, to int) ([]planner.PlanItem, []planner.PlanItem, error) {
	if err := checkIndex(source, from); err != nil {
		return nil, nil, err
	}
	to = max(0, min(to, len(dest)))

	item := source[from]
	newSource := slices.Delete(slices.Clone(source), from, from+1)
	newDest := slices.Insert(slices.Clone(dest), to, item)
	return newSource, newDest, nil
}

// ReplaceOption adjusts the replaced item.
type ReplaceOption func(*planner.PlanItem)

// WithQuantity overrides the quantity and unit of the replaced item.
func WithQuantity(quantity float64, unit string) ReplaceOption {
	return func(item *planner.PlanItem) {
		item.Quantity = quantity
		if unit != "" {
			item.Unit = unit
		}
	}
}

// ReplaceAt substitutes the food of the item at index, keeping its identifier,
// position and quantity unless an option says otherwise.
func ReplaceAt(list []planner.PlanItem, index int, ref planner.FoodRef, opts ...ReplaceOption) ([]planner.PlanItem, error) {
	if err := checkIndex(list, index); err != nil {
		return nil, err
	}
	out := slices.Clone(list)
	out[index].Food = ref
	for _, opt := range opts {
		opt(&out[index])
	}
	return out, nil
}
