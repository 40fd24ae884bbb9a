// Package app executes plan actions coming from the assistant, drag gestures
// and swap selections, and turns every outcome into a message for the user.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"meal-plan-assistant/internal/assistant"
	"meal-plan-assistant/internal/command"
	"meal-plan-assistant/internal/foodinfo"
	"meal-plan-assistant/internal/gesture"
	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
	"meal-plan-assistant/internal/swap"
	"meal-plan-assistant/internal/undo"
)

// Coordinator is the plan cache every mutation goes through.
type Coordinator interface {
	Plan(ctx context.Context, owner, date string) (planner.DayPlan, error)
	Apply(ctx context.Context, m plansync.Mutation) (plansync.Result, error)
	Undo(ctx context.Context, owner string) (undo.Entry, error)
	History(owner string) []undo.Entry
}

// SwapProvider manages substitute options.
type SwapProvider interface {
	Fetch(ctx context.Context, req swap.Request) (swap.Pending, error)
	Pending(ctx context.Context, owner string) (swap.Pending, error)
	Select(ctx context.Context, owner string, ordinal int) (swap.Applied, error)
	ChangeFilters(ctx context.Context, owner string, filters swap.Filters) (swap.Pending, error)
	Discard(ctx context.Context, owner string) error
}

// FoodLookup answers food_info actions.
type FoodLookup interface {
	ByID(ctx context.Context, id string) (foodinfo.Info, error)
	ByName(ctx context.Context, name string) (foodinfo.Info, error)
}

// Conversation is the language model side of a chat turn.
type Conversation interface {
	Converse(ctx context.Context, owner, text string, snap assistant.Snapshot) (assistant.Reply, error)
}

// Gestures applies drag and drop events.
type Gestures interface {
	Drop(ctx context.Context, ev gesture.DragEvent) (gesture.Outcome, error)
}

// PlanLocator finds a stored plan by its identifier.
type PlanLocator interface {
	GetByPlanID(ctx context.Context, planID string) (*planner.DayPlan, error)
}

// Result is the outcome of one action.
type Result struct {
	Text     string                     `json:"text"`
	Kind     command.Kind               `json:"kind,omitempty"`
	Plans    map[string]planner.DayPlan `json:"plans,omitempty"`
	Options  []swap.Option              `json:"options,omitempty"`
	Declined bool                       `json:"declined,omitempty"`
}

// App wires the plan engine together.
type App struct {
	coord     Coordinator
	swaps     SwapProvider
	foods     FoodLookup
	assistant Conversation
	gestures  Gestures
	locator   PlanLocator
}

// Option configures an App.
type Option func(*App)

// WithFoodLookup enables food_info actions.
func WithFoodLookup(f FoodLookup) Option {
	return func(a *App) { a.foods = f }
}

// WithAssistant enables Chat.
func WithAssistant(c Conversation) Option {
	return func(a *App) { a.assistant = c }
}

// WithPlanLocator enables ApplySwap by plan identifier.
func WithPlanLocator(l PlanLocator) Option {
	return func(a *App) { a.locator = l }
}

// NewApp creates an App. Drag gestures go through a gesture adapter over the
// same coordinator.
func NewApp(coord Coordinator, swaps SwapProvider, opts ...Option) *App {
	a := &App{
		coord:    coord,
		swaps:    swaps,
		gestures: gesture.NewAdapter(coord),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Plan returns the owner's current plan for date.
func (a *App) Plan(ctx context.Context, owner, date string) (planner.DayPlan, error) {
	return a.coord.Plan(ctx, owner, date)
}

// Chat sends the user's text to the assistant and executes the action it
// answers with. Declined actions come back as a Result carrying the reason;
// only an assistant failure is returned as an error.
func (a *App) Chat(ctx context.Context, owner, date, text string) (Result, error) {
	if a.assistant == nil {
		return Result{}, errors.New("assistant is not configured")
	}

	plan, err := a.coord.Plan(ctx, owner, date)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load plan: %w", err)
	}
	snap := assistant.Snapshot{Plan: plan}
	if pending, err := a.swaps.Pending(ctx, owner); err == nil {
		for _, opt := range pending.Options {
			snap.Options = append(snap.Options, opt.Label)
		}
	}

	reply, err := a.assistant.Converse(ctx, owner, text, snap)
	if err != nil {
		return Result{Text: unavailableText, Declined: true}, err
	}

	action := command.Interpret(reply.Text)
	if m, ok := action.(command.Message); ok && m.IsParseFailure() {
		log.Printf("app: assistant output for %s not understood (%s)", owner, m.Reason)
	}
	return a.Run(ctx, owner, date, action), nil
}

// Run executes an action and converts any error into a declined Result.
func (a *App) Run(ctx context.Context, owner, date string, action command.Action) Result {
	res, err := a.Execute(ctx, owner, date, action)
	if err != nil {
		log.Printf("app: %s for %s on %s declined: %v", action.Kind(), owner, date, err)
		return Result{Text: UserMessage(err), Kind: action.Kind(), Declined: true}
	}
	return res
}

// Execute performs one action against the owner's plan for date. Indices on
// the action are 1-based and are converted here.
func (a *App) Execute(ctx context.Context, owner, date string, action command.Action) (Result, error) {
	if err := planner.ValidateDate(date); err != nil {
		return Result{}, err
	}

	switch act := action.(type) {
	case command.Reorder:
		return a.reorder(ctx, owner, date, act)
	case command.Swap:
		return a.swapItems(ctx, owner, date, act)
	case command.Move:
		return a.move(ctx, owner, date, act)
	case command.ReplaceFood:
		return a.replaceFood(ctx, owner, date, act)
	case command.ApplySwapOption:
		applied, err := a.swaps.Select(ctx, owner, act.Option)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Text:  applied.Description,
			Kind:  command.KindApplySwapOption,
			Plans: map[string]planner.DayPlan{applied.Plan.Date: applied.Plan},
		}, nil
	case command.FoodInfo:
		return a.foodInfo(ctx, owner, date, act)
	case command.Message:
		text := act.Text
		if text == "" {
			text = command.ClarifyText
		}
		return Result{Text: text, Kind: command.KindMessage, Declined: act.IsParseFailure()}, nil
	}
	return Result{}, fmt.Errorf("unsupported action %T", action)
}

// Drag applies a drag and drop gesture.
func (a *App) Drag(ctx context.Context, ev gesture.DragEvent) (gesture.Outcome, error) {
	return a.gestures.Drop(ctx, ev)
}

// Undo reverts the owner's most recent change.
func (a *App) Undo(ctx context.Context, owner string) (Result, error) {
	entry, err := a.coord.Undo(ctx, owner)
	if err != nil {
		return Result{}, err
	}

	plans := make(map[string]planner.DayPlan, len(entry.Snapshots))
	for _, s := range entry.Snapshots {
		if p, err := a.coord.Plan(ctx, owner, s.Date); err == nil {
			plans[s.Date] = p
		}
	}
	return Result{Text: "Undone: " + entry.Description, Plans: plans}, nil
}

// History lists the undoable changes, newest first.
func (a *App) History(owner string) []undo.Entry {
	return a.coord.History(owner)
}

// ApplySwap replaces one item of the plan identified by planID.
func (a *App) ApplySwap(ctx context.Context, planID, targetItemID string, replacement planner.PlanItem) (planner.DayPlan, error) {
	if a.locator == nil {
		return planner.DayPlan{}, errors.New("plan lookup is not configured")
	}
	stored, err := a.locator.GetByPlanID(ctx, planID)
	if err != nil {
		return planner.DayPlan{}, err
	}
	if stored == nil {
		return planner.DayPlan{}, fmt.Errorf("%w: plan %s", mutation.ErrMissingTarget, planID)
	}
	owner, date := stored.Owner, stored.Date

	var description string
	res, err := a.coord.Apply(ctx, plansync.Mutation{
		Owner: owner,
		Dates: []string{date},
		Apply: func(plans map[string]*planner.DayPlan) error {
			plan := plans[date]
			mt, index, ok := plan.Locate(targetItemID)
			if !ok {
				return mutation.ErrMissingTarget
			}
			list := plan.Meal(mt)
			var opts []mutation.ReplaceOption
			if replacement.Quantity > 0 {
				opts = append(opts, mutation.WithQuantity(replacement.Quantity, replacement.Unit))
			}
			out, err := mutation.ReplaceAt(list, index, replacement.Food, opts...)
			if err != nil {
				return err
			}
			description = fmt.Sprintf("Replaced %s with %s in %s", list[index].Food.Name, replacement.Food.Name, mt)
			plan.SetMeal(mt, out)
			return nil
		},
		Describe: func() string { return description },
	})
	if err != nil {
		return planner.DayPlan{}, err
	}
	return res.Plans[date], nil
}

func (a *App) reorder(ctx context.Context, owner, date string, act command.Reorder) (Result, error) {
	var description string
	return a.apply(ctx, command.KindReorder, plansync.Mutation{
		Owner: owner,
		Dates: []string{date},
		Apply: func(plans map[string]*planner.DayPlan) error {
			plan := plans[date]
			list := plan.Meal(act.MealType)
			out, err := mutation.Reorder(list, act.FromIndex-1, act.ToIndex-1)
			if err != nil {
				return err
			}
			description = fmt.Sprintf("Moved %s to position %d in %s", list[act.FromIndex-1].Food.Name, act.ToIndex, act.MealType)
			plan.SetMeal(act.MealType, out)
			return nil
		},
		Describe: func() string { return description },
	})
}

func (a *App) swapItems(ctx context.Context, owner, date string, act command.Swap) (Result, error) {
	var description string
	return a.apply(ctx, command.KindSwap, plansync.Mutation{
		Owner: owner,
		Dates: []string{date},
		Apply: func(plans map[string]*planner.DayPlan) error {
			plan := plans[date]
			list := plan.Meal(act.MealType)
			out, err := mutation.Swap(list, act.IndexA-1, act.IndexB-1)
			if err != nil {
				return err
			}
			description = fmt.Sprintf("Swapped %s and %s in %s", list[act.IndexA-1].Food.Name, list[act.IndexB-1].Food.Name, act.MealType)
			plan.SetMeal(act.MealType, out)
			return nil
		},
		Describe: func() string { return description },
	})
}

func (a *App) move(ctx context.Context, owner, date string, act command.Move) (Result, error) {
	toDate := act.ToDate
	if toDate == "" {
		toDate = date
	}

	var description string
	return a.apply(ctx, command.KindMove, plansync.Mutation{
		Owner: owner,
		Dates: []string{date, toDate},
		Apply: func(plans map[string]*planner.DayPlan) error {
			src, dst := plans[date], plans[toDate]
			from := act.FromIndex - 1
			list := src.Meal(act.FromMealType)
			if from < 0 || from >= len(list) {
				return fmt.Errorf("%w: %d not in [1, %d]", mutation.ErrInvalidIndex, act.FromIndex, len(list))
			}
			name := list[from].Food.Name

			to := len(dst.Meal(act.ToMealType))
			if act.ToIndex != nil {
				to = *act.ToIndex - 1
			}
			if src == dst && act.FromMealType == act.ToMealType && to == from {
				return mutation.ErrNoOpRequested
			}
			if err := mutation.MoveItem(src, mutation.Location{Meal: act.FromMealType, Index: from}, dst, mutation.Location{Meal: act.ToMealType, Index: to}); err != nil {
				return err
			}

			switch {
			case toDate != date:
				description = fmt.Sprintf("Moved %s from %s on %s to %s on %s", name, act.FromMealType, date, act.ToMealType, toDate)
			case act.FromMealType != act.ToMealType:
				description = fmt.Sprintf("Moved %s from %s to %s", name, act.FromMealType, act.ToMealType)
			default:
				description = fmt.Sprintf("Moved %s within %s", name, act.FromMealType)
			}
			return nil
		},
		Describe: func() string { return description },
	})
}

func (a *App) replaceFood(ctx context.Context, owner, date string, act command.ReplaceFood) (Result, error) {
	req := swap.Request{
		Owner:    owner,
		Date:     date,
		MealType: act.MealType,
		Filters:  swap.Filters{Query: act.Query, Categories: act.Categories, DishType: act.DishType},
		Mode:     swap.Mode(act.Mode),
		Sizing:   act.Percentage,
	}

	target := "your " + string(act.MealType)
	if act.Index != nil {
		plan, err := a.coord.Plan(ctx, owner, date)
		if err != nil {
			return Result{}, err
		}
		list := plan.Meal(act.MealType)
		i := *act.Index - 1
		if i < 0 || i >= len(list) {
			return Result{}, fmt.Errorf("%w: %d not in [1, %d]", mutation.ErrInvalidIndex, *act.Index, len(list))
		}
		req.ItemID = list[i].ID
		target = list[i].Food.Name
	}

	pending, err := a.swaps.Fetch(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return optionsResult(target, pending), nil
}

// ChangeSwapFilters re-runs the owner's open substitute search with new filters.
func (a *App) ChangeSwapFilters(ctx context.Context, owner string, filters swap.Filters) (Result, error) {
	pending, err := a.swaps.ChangeFilters(ctx, owner, filters)
	if err != nil {
		return Result{}, err
	}

	target := "your " + string(pending.MealType)
	if pending.ItemID != "" {
		if plan, err := a.coord.Plan(ctx, owner, pending.Date); err == nil {
			if mt, i, ok := plan.Locate(pending.ItemID); ok {
				target = plan.Meal(mt)[i].Food.Name
			}
		}
	}
	return optionsResult(target, pending), nil
}

// DiscardSwap drops the owner's open substitute options.
func (a *App) DiscardSwap(ctx context.Context, owner string) (Result, error) {
	if _, err := a.swaps.Pending(ctx, owner); err != nil {
		return Result{}, err
	}
	if err := a.swaps.Discard(ctx, owner); err != nil {
		return Result{}, err
	}
	return Result{Text: "Okay, I dropped those options. Your plan is unchanged.", Kind: command.KindMessage}, nil
}

func optionsResult(target string, pending swap.Pending) Result {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are some options to replace %s:\n", target)
	for i, opt := range pending.Options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, opt.Label)
	}
	sb.WriteString("Reply with the number of the option you want.")
	return Result{Text: sb.String(), Kind: command.KindReplaceFood, Options: pending.Options}
}

func (a *App) foodInfo(ctx context.Context, owner, date string, act command.FoodInfo) (Result, error) {
	if a.foods == nil {
		return Result{Text: "Food details are not available right now.", Kind: command.KindFoodInfo}, nil
	}

	var (
		info foodinfo.Info
		err  error
	)
	if act.FoodName != "" {
		info, err = a.foods.ByName(ctx, act.FoodName)
	} else {
		plan, perr := a.coord.Plan(ctx, owner, date)
		if perr != nil {
			return Result{}, perr
		}
		list := plan.Meal(act.MealType)
		i := act.Index - 1
		if i < 0 || i >= len(list) {
			return Result{}, fmt.Errorf("%w: %d not in [1, %d]", mutation.ErrInvalidIndex, act.Index, len(list))
		}
		info, err = a.foods.ByID(ctx, list[i].Food.ID)
	}
	if err != nil {
		// Informational only; never fails the turn.
		log.Printf("app: food info lookup failed: %v", err)
		return Result{Text: "I couldn't find details about that food.", Kind: command.KindFoodInfo}, nil
	}
	return Result{Text: info.Text(), Kind: command.KindFoodInfo}, nil
}

func (a *App) apply(ctx context.Context, kind command.Kind, m plansync.Mutation) (Result, error) {
	res, err := a.coord.Apply(ctx, m)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: res.Description, Kind: kind, Plans: res.Plans}, nil
}
