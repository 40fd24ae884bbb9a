package planner

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used to key day plans.
const DateLayout = "2006-01-02"

// MealType names one of the three ordered lists of a day plan.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// MealTypes lists the meal types in display order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner}

// ParseMealType accepts only the three literal meal type names.
func ParseMealType(s string) (MealType, bool) {
	switch MealType(s) {
	case Breakfast, Lunch, Dinner:
		return MealType(s), true
	}
	return "", false
}

// FoodRef points at a food entity in the catalog.
type FoodRef struct {
	ID   string `json:"food_id"`
	Name string `json:"name"`
}

// PlanItem is one food entry within a day plan. ID is stable across reorders.
type PlanItem struct {
	ID       string  `json:"id"`
	Food     FoodRef `json:"food"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// DayPlan is a user's meals for one calendar date.
type DayPlan struct {
	PlanID    string     `json:"plan_id"`
	Owner     string     `json:"owner"`
	Date      string     `json:"date"`
	Breakfast []PlanItem `json:"breakfast"`
	Lunch     []PlanItem `json:"lunch"`
	Dinner    []PlanItem `json:"dinner"`
	Version   int64      `json:"version"`
}

// CommitResult is what a persistence backend returns for a commit.
type CommitResult struct {
	Success bool    `json:"success"`
	Data    DayPlan `json:"data"`
}

// NewDayPlan returns an empty plan with a fresh plan identifier.
func NewDayPlan(owner, date string) DayPlan {
	return DayPlan{
		PlanID: NewPlanID(),
		Owner:  owner,
		Date:   date,
	}
}

// Meal returns the list for the given meal type. The slice aliases the plan.
func (p *DayPlan) Meal(mt MealType) []PlanItem {
	switch mt {
	case Breakfast:
		return p.Breakfast
	case Lunch:
		return p.Lunch
	case Dinner:
		return p.Dinner
	}
	return nil
}

// SetMeal replaces the list for the given meal type.
func (p *DayPlan) SetMeal(mt MealType, items []PlanItem) {
	switch mt {
	case Breakfast:
		p.Breakfast = items
	case Lunch:
		p.Lunch = items
	case Dinner:
		p.Dinner = items
	}
}

// Clone returns a deep, independent copy of the plan.
func (p DayPlan) Clone() DayPlan {
	c := p
	c.Breakfast = slices.Clone(p.Breakfast)
	c.Lunch = slices.Clone(p.Lunch)
	c.Dinner = slices.Clone(p.Dinner)
	return c
}

// Locate finds an item by identifier.
func (p *DayPlan) Locate(itemID string) (MealType, int, bool) {
	for _, mt := range MealTypes {
		for i, item := range p.Meal(mt) {
			if item.ID == itemID {
				return mt, i, true
			}
		}
	}
	return "", -1, false
}

// ItemCount is the combined length of the three lists.
func (p *DayPlan) ItemCount() int {
	return len(p.Breakfast) + len(p.Lunch) + len(p.Dinner)
}

// ItemIDs returns the identifiers of a meal in order.
func (p *DayPlan) ItemIDs(mt MealType) []string {
	items := p.Meal(mt)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// NewItemID allocates a plan item identifier. Identifiers are random, so one
// removed from a plan is never handed out again.
func NewItemID() string {
	return "item_" + uuid.NewString()
}

// NewPlanID allocates a day plan identifier.
func NewPlanID() string {
	return "plan_" + uuid.NewString()
}

// NewItem builds a plan item for a food with a fresh identifier.
func NewItem(food FoodRef, quantity float64, unit string) PlanItem {
	return PlanItem{
		ID:       NewItemID(),
		Food:     food,
		Quantity: quantity,
		Unit:     unit,
	}
}

// ErrInvalidDate is returned for a date not in DateLayout.
var ErrInvalidDate = errors.New("invalid date")

// ValidateDate checks that s is a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return nil
}
