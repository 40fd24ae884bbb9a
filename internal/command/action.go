// Package command turns assistant output into structured plan actions.
package command

import (
	"meal-plan-assistant/internal/planner"
)

// Kind is the tag of an Action.
type Kind string

const (
	KindReorder         Kind = "reorder"
	KindSwap            Kind = "swap"
	KindMove            Kind = "move"
	KindReplaceFood     Kind = "replace_food"
	KindApplySwapOption Kind = "apply_swap_option"
	KindFoodInfo        Kind = "food_info"
	KindMessage         Kind = "message"
)

// Action is one instruction from the assistant. Indices are 1-based, exactly
// as the assistant produced them.
type Action interface {
	Kind() Kind
}

// Reorder moves an item to another position within the same meal.
type Reorder struct {
	MealType  planner.MealType
	FromIndex int
	ToIndex   int
}

// Swap exchanges two items of the same meal.
type Swap struct {
	MealType planner.MealType
	IndexA   int
	IndexB   int
}

// Move transfers an item to another meal, optionally on another date.
// A nil ToIndex appends; an empty ToDate means the date in context.
type Move struct {
	FromMealType planner.MealType
	FromIndex    int
	ToMealType   planner.MealType
	ToIndex      *int
	ToDate       string
}

// GenerationMode selects how substitutes are sized.
type GenerationMode string

const (
	// ModePercentage matches a percentage of the original item's contribution.
	ModePercentage GenerationMode = "percentage"
	// ModeRemaining fills what is left of the meal's budget.
	ModeRemaining GenerationMode = "remaining"
)

// ReplaceFood asks for substitute candidates. A nil Index targets the whole meal.
type ReplaceFood struct {
	MealType   planner.MealType
	Index      *int
	Query      string
	Categories []string
	DishType   string
	Mode       GenerationMode
	Percentage float64
}

// ApplySwapOption picks one of the pending substitute candidates.
type ApplySwapOption struct {
	Option int
}

// FoodInfo asks for details about a planned item or a named food.
type FoodInfo struct {
	MealType planner.MealType
	Index    int
	FoodName string
}

// Reasons a Message was produced instead of a plan action.
const (
	ReasonReply         = ""
	ReasonNoObject      = "no_object"
	ReasonInvalidJSON   = "invalid_json"
	ReasonUnknownType   = "unknown_type"
	ReasonInvalidFields = "invalid_fields"
)

// Message is plain conversational text. Reason is empty for a genuine reply
// and names the parse failure otherwise.
type Message struct {
	Text   string
	Reason string
}

func (Reorder) Kind() Kind         { return KindReorder }
func (Swap) Kind() Kind            { return KindSwap }
func (Move) Kind() Kind            { return KindMove }
func (ReplaceFood) Kind() Kind     { return KindReplaceFood }
func (ApplySwapOption) Kind() Kind { return KindApplySwapOption }
func (FoodInfo) Kind() Kind        { return KindFoodInfo }
func (Message) Kind() Kind         { return KindMessage }

// IsParseFailure reports whether the message stands in for an action the
// assistant failed to encode.
func (m Message) IsParseFailure() bool {
	return m.Reason != ReasonReply
}
