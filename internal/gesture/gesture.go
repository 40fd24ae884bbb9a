// Package gesture turns completed drag-and-drop interactions on a plan into
// coordinator mutations.
package gesture

import (
	"context"
	"errors"
	"fmt"

	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
)

// Edge is the half of a drop target the pointer was closest to.
type Edge string

const (
	EdgeNone   Edge = ""
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
)

// ErrInvalidEvent is returned for a drag event that cannot describe a drop.
var ErrInvalidEvent = errors.New("invalid drag event")

// Endpoint identifies a meal list, and optionally an item inside it.
type Endpoint struct {
	Date   string           `json:"date"`
	Meal   planner.MealType `json:"meal_type"`
	ItemID string           `json:"item_id,omitempty"`
}

// DragEvent is a finished drag. Source.ItemID names the dragged item; an
// empty Target.ItemID means the item was dropped on the list itself.
type DragEvent struct {
	Owner  string   `json:"owner"`
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
	Edge   Edge     `json:"edge,omitempty"`
}

// Outcome reports a committed drop.
type Outcome struct {
	Description string `json:"description"`
	// Highlight lists the items the presentation layer should flash.
	Highlight []string `json:"highlight"`
	// Recalc lists, per date, the items whose derived values (such as
	// nutrition totals) need recomputing.
	Recalc map[string][]string         `json:"recalc"`
	Plans  map[string]planner.DayPlan `json:"plans"`
}

// Applier is the part of the coordinator the adapter needs.
type Applier interface {
	Apply(ctx context.Context, m plansync.Mutation) (plansync.Result, error)
}

// Adapter converts drag events into mutations.
type Adapter struct {
	coord Applier
}

// NewAdapter creates an Adapter that routes mutations through coord.
func NewAdapter(coord Applier) *Adapter {
	return &Adapter{coord: coord}
}

// Drop applies a drag event. Indices are resolved against the live plan
// inside the mutation so a stale event fails with ErrMissingTarget instead of
// moving the wrong item.
func (a *Adapter) Drop(ctx context.Context, ev DragEvent) (Outcome, error) {
	if err := validate(ev); err != nil {
		return Outcome{}, err
	}
	if ev.Target.ItemID == ev.Source.ItemID {
		return Outcome{}, mutation.ErrNoOpRequested
	}

	var description string
	var touched []string
	res, err := a.coord.Apply(ctx, plansync.Mutation{
		Owner:       ev.Owner,
		Dates:       []string{ev.Source.Date, ev.Target.Date},
		Description: "Moved item",
		Apply: func(plans map[string]*planner.DayPlan) error {
			src := plans[ev.Source.Date]
			dst := plans[ev.Target.Date]

			srcList := src.Meal(ev.Source.Meal)
			from, err := mutation.IndexOf(srcList, ev.Source.ItemID)
			if err != nil {
				return err
			}
			name := srcList[from].Food.Name

			to, err := insertIndex(dst.Meal(ev.Target.Meal), ev.Target.ItemID, ev.Edge)
			if err != nil {
				return err
			}

			sameList := src == dst && ev.Source.Meal == ev.Target.Meal
			if sameList && from < to {
				// The insert position was measured with the item still in place.
				to--
			}
			if err := mutation.MoveItem(src, mutation.Location{Meal: ev.Source.Meal, Index: from}, dst, mutation.Location{Meal: ev.Target.Meal, Index: to}); err != nil {
				return err
			}

			touched = []string{ev.Source.Date}
			if ev.Target.Date != ev.Source.Date {
				touched = append(touched, ev.Target.Date)
			}
			description = describe(name, ev, sameList, to)
			return nil
		},
		Describe: func() string { return description },
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Description: description,
		Highlight:   []string{ev.Source.ItemID},
		Recalc:      make(map[string][]string),
		Plans:       res.Plans,
	}
	for _, date := range touched {
		plan := res.Plans[date]
		var ids []string
		if date == ev.Source.Date {
			ids = append(ids, plan.ItemIDs(ev.Source.Meal)...)
		}
		if date == ev.Target.Date && (date != ev.Source.Date || ev.Target.Meal != ev.Source.Meal) {
			ids = append(ids, plan.ItemIDs(ev.Target.Meal)...)
		}
		out.Recalc[date] = ids
	}
	return out, nil
}

func validate(ev DragEvent) error {
	if ev.Owner == "" {
		return fmt.Errorf("%w: no owner", ErrInvalidEvent)
	}
	if ev.Source.ItemID == "" {
		return fmt.Errorf("%w: no source item", ErrInvalidEvent)
	}
	for _, ep := range []Endpoint{ev.Source, ev.Target} {
		if err := planner.ValidateDate(ep.Date); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		if _, ok := planner.ParseMealType(string(ep.Meal)); !ok {
			return fmt.Errorf("%w: unknown meal type %q", ErrInvalidEvent, ep.Meal)
		}
	}
	switch ev.Edge {
	case EdgeNone, EdgeTop, EdgeBottom:
	default:
		return fmt.Errorf("%w: unknown edge %q", ErrInvalidEvent, ev.Edge)
	}
	return nil
}

// insertIndex is the position in list the dragged item should occupy,
// measured before the item is removed from its source.
func insertIndex(list []planner.PlanItem, targetID string, edge Edge) (int, error) {
	if targetID == "" {
		return len(list), nil
	}
	i, err := mutation.IndexOf(list, targetID)
	if err != nil {
		return 0, err
	}
	if edge == EdgeBottom {
		return i + 1, nil
	}
	return i, nil
}

func describe(name string, ev DragEvent, sameList bool, to int) string {
	if sameList {
		return fmt.Sprintf("Moved %s to position %d in %s", name, to+1, ev.Source.Meal)
	}
	if ev.Source.Date != ev.Target.Date {
		return fmt.Sprintf("Moved %s from %s %s to %s %s", name, ev.Source.Date, ev.Source.Meal, ev.Target.Date, ev.Target.Meal)
	}
	return fmt.Sprintf("Moved %s from %s to %s", name, ev.Source.Meal, ev.Target.Meal)
}
