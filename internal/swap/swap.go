// Package swap fetches ranked substitute candidates for a planned item or a
// whole meal and keeps the owner's pending selection until one is applied.
package swap

import (
	"context"
	"errors"
	"time"

	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
)

var (
	// ErrOptionsUnavailable is returned when the ranker found no candidates.
	ErrOptionsUnavailable = errors.New("no substitutes found")
	// ErrInvalidSelection is returned for an ordinal outside the option list.
	ErrInvalidSelection = errors.New("invalid option number")
	// ErrNoPendingSwap is returned when there are no options to choose from.
	ErrNoPendingSwap = errors.New("no substitutes are waiting for a choice")
	// ErrSuperseded is returned by a fetch whose result arrived after a newer
	// request for the same owner had started.
	ErrSuperseded = errors.New("request was superseded by a newer one")
)

// Mode selects how substitutes are sized.
type Mode string

const (
	ModePercentage Mode = "percentage"
	ModeRemaining  Mode = "remaining"
)

// Filters narrow the candidate search.
type Filters struct {
	Query      string   `json:"query,omitempty"`
	Categories []string `json:"categories,omitempty"`
	DishType   string   `json:"dish_type,omitempty"`
}

// Option is one candidate. For a single item Items holds the replacement;
// for a whole meal it holds the new meal list.
type Option struct {
	Label string             `json:"label"`
	Items []planner.PlanItem `json:"items"`
	Score float64            `json:"score"`
}

// Query is what the ranker is asked for. An empty ItemID targets the whole meal.
type Query struct {
	Plan     planner.DayPlan
	MealType planner.MealType
	ItemID   string
	Filters  Filters
	Mode     Mode
	Sizing   float64
}

// Ranker produces ordered substitute candidates.
type Ranker interface {
	FetchOptions(ctx context.Context, q Query) ([]Option, error)
}

// Pending is an owner's open selection.
type Pending struct {
	Owner     string           `json:"owner"`
	Date      string           `json:"date"`
	PlanID    string           `json:"plan_id"`
	MealType  planner.MealType `json:"meal_type"`
	ItemID    string           `json:"item_id,omitempty"`
	Filters   Filters          `json:"filters"`
	Mode      Mode             `json:"mode"`
	Sizing    float64          `json:"sizing"`
	Options   []Option         `json:"options"`
	CreatedAt time.Time        `json:"created_at"`
}

// WholeMeal reports whether the selection regenerates an entire meal.
func (p Pending) WholeMeal() bool {
	return p.ItemID == ""
}

// PendingStore keeps at most one Pending per owner. Get returns nil, nil
// when there is none.
type PendingStore interface {
	Get(ctx context.Context, owner string) (*Pending, error)
	Put(ctx context.Context, p Pending) error
	Delete(ctx context.Context, owner string) error
}

// Plans is the part of the coordinator the provider reads and writes through.
type Plans interface {
	Plan(ctx context.Context, owner, date string) (planner.DayPlan, error)
	Apply(ctx context.Context, m plansync.Mutation) (plansync.Result, error)
}
