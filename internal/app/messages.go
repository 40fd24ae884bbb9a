package app

import (
	"errors"
	"strings"

	"meal-plan-assistant/internal/foodinfo"
	"meal-plan-assistant/internal/gesture"
	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
	"meal-plan-assistant/internal/swap"
)

const unavailableText = "The assistant is unavailable right now. Please try again in a moment."

// UserMessage turns an engine error into a sentence suitable for the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, mutation.ErrNoOpRequested):
		return "That item is already in that position."
	case errors.Is(err, mutation.ErrInvalidIndex):
		return "That position doesn't exist in your plan. Please check the item numbers and try again."
	case errors.Is(err, mutation.ErrMissingTarget):
		return "That item is no longer in your plan. Please check the current plan and try again."
	case errors.Is(err, plansync.ErrPersistFailure):
		return "Your change couldn't be saved, so it was reverted. Please try again."
	case errors.Is(err, plansync.ErrNothingToUndo):
		return "There's nothing to undo."
	case errors.Is(err, swap.ErrOptionsUnavailable):
		return "I couldn't find any substitutes for that. Try different filters."
	case errors.Is(err, swap.ErrInvalidSelection):
		if _, detail, ok := strings.Cut(err.Error(), ": "); ok {
			return "That option isn't on the list. Please " + detail + "."
		}
		return "That option isn't on the list."
	case errors.Is(err, swap.ErrNoPendingSwap):
		return "There are no substitutes waiting for a choice. Ask me to replace a food first."
	case errors.Is(err, swap.ErrSuperseded):
		return "That request was replaced by a newer one."
	case errors.Is(err, gesture.ErrInvalidEvent) && !errors.Is(err, planner.ErrInvalidDate):
		return "That drop couldn't be understood. Please try again."
	case errors.Is(err, planner.ErrInvalidDate):
		return "That date isn't valid. Please use the YYYY-MM-DD format."
	case errors.Is(err, foodinfo.ErrNotFound):
		return "I couldn't find that food."
	}
	return "Something went wrong. Please try again."
}
