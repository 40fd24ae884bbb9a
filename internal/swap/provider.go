package swap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"meal-plan-assistant/internal/mutation"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
)

// Request starts a new substitute search.
type Request struct {
	Owner    string
	Date     string
	MealType planner.MealType
	ItemID   string
	Filters  Filters
	Mode     Mode
	Sizing   float64
}

// Applied describes a committed selection.
type Applied struct {
	Plan        planner.DayPlan
	Description string
}

// Provider owns the pending swap workflow.
type Provider struct {
	ranker  Ranker
	plans   Plans
	pending PendingStore
	now     func() time.Time

	// mu guards epochs and locks. Each owner lock serializes that owner's
	// pending store writes.
	mu     sync.Mutex
	epochs map[string]uint64
	locks  map[string]*sync.Mutex
}

// NewProvider creates a Provider.
func NewProvider(ranker Ranker, plans Plans, pending PendingStore) *Provider {
	return &Provider{
		ranker:  ranker,
		plans:   plans,
		pending: pending,
		now:     time.Now,
		epochs:  make(map[string]uint64),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Fetch asks the ranker for candidates and stores them as the owner's pending
// swap, replacing any previous one. When a newer Fetch for the same owner
// starts before this one returns, this result is dropped with ErrSuperseded.
func (p *Provider) Fetch(ctx context.Context, req Request) (Pending, error) {
	if req.Owner == "" {
		return Pending{}, fmt.Errorf("swap request has no owner")
	}
	if _, ok := planner.ParseMealType(string(req.MealType)); !ok {
		return Pending{}, fmt.Errorf("unknown meal type %q", req.MealType)
	}
	if req.Mode == "" {
		req.Mode = ModePercentage
	}
	if req.Sizing <= 0 {
		req.Sizing = 100
	}

	epoch := p.begin(req.Owner)

	plan, err := p.plans.Plan(ctx, req.Owner, req.Date)
	if err != nil {
		return Pending{}, p.abandon(ctx, req.Owner, epoch, err)
	}
	if req.ItemID != "" {
		if _, err := mutation.IndexOf(plan.Meal(req.MealType), req.ItemID); err != nil {
			return Pending{}, p.abandon(ctx, req.Owner, epoch, err)
		}
	}

	options, err := p.ranker.FetchOptions(ctx, Query{
		Plan:     plan,
		MealType: req.MealType,
		ItemID:   req.ItemID,
		Filters:  req.Filters,
		Mode:     req.Mode,
		Sizing:   req.Sizing,
	})
	if err != nil {
		return Pending{}, p.abandon(ctx, req.Owner, epoch, fmt.Errorf("failed to fetch swap options: %w", err))
	}

	pending := Pending{
		Owner:     req.Owner,
		Date:      req.Date,
		PlanID:    plan.PlanID,
		MealType:  req.MealType,
		ItemID:    req.ItemID,
		Filters:   req.Filters,
		Mode:      req.Mode,
		Sizing:    req.Sizing,
		Options:   options,
		CreatedAt: p.now(),
	}
	if err := p.store(ctx, epoch, pending); err != nil {
		return Pending{}, err
	}
	return pending, nil
}

// store replaces the owner's pending swap unless a newer fetch has started.
// The owner lock is held across the write, so only the latest fetch ever
// touches the stored swap.
func (p *Provider) store(ctx context.Context, epoch uint64, pending Pending) error {
	if len(pending.Options) == 0 {
		return p.abandon(ctx, pending.Owner, epoch, ErrOptionsUnavailable)
	}

	l := p.ownerLock(pending.Owner)
	l.Lock()
	defer l.Unlock()
	if p.epoch(pending.Owner) != epoch {
		log.Printf("swap: ignoring superseded options for %s", pending.Owner)
		return ErrSuperseded
	}
	if err := p.pending.Put(ctx, pending); err != nil {
		return fmt.Errorf("failed to save swap options: %w", err)
	}
	return nil
}

// abandon drops the previous pending swap after a failed fetch, provided no
// newer fetch has started. It returns cause, or ErrSuperseded when the fetch
// is stale.
func (p *Provider) abandon(ctx context.Context, owner string, epoch uint64, cause error) error {
	l := p.ownerLock(owner)
	l.Lock()
	defer l.Unlock()
	if p.epoch(owner) != epoch {
		log.Printf("swap: ignoring superseded failure for %s: %v", owner, cause)
		return ErrSuperseded
	}
	if err := p.pending.Delete(ctx, owner); err != nil {
		log.Printf("swap: failed to discard previous swap for %s: %v", owner, err)
	}
	return cause
}

// ChangeFilters re-runs the owner's pending search with new filters.
func (p *Provider) ChangeFilters(ctx context.Context, owner string, filters Filters) (Pending, error) {
	current, err := p.Pending(ctx, owner)
	if err != nil {
		return Pending{}, err
	}
	return p.Fetch(ctx, Request{
		Owner:    owner,
		Date:     current.Date,
		MealType: current.MealType,
		ItemID:   current.ItemID,
		Filters:  filters,
		Mode:     current.Mode,
		Sizing:   current.Sizing,
	})
}

// Pending returns the owner's open selection or ErrNoPendingSwap.
func (p *Provider) Pending(ctx context.Context, owner string) (Pending, error) {
	current, err := p.pending.Get(ctx, owner)
	if err != nil {
		return Pending{}, fmt.Errorf("failed to load pending swap: %w", err)
	}
	if current == nil {
		return Pending{}, ErrNoPendingSwap
	}
	return *current, nil
}

// Select applies the option at the 1-based ordinal. An out of range ordinal
// leaves everything untouched. A target that has disappeared from the plan
// clears the pending swap; a failed commit keeps it so the user can retry.
// A fetch started while the commit is in flight keeps its own pending swap.
func (p *Provider) Select(ctx context.Context, owner string, ordinal int) (Applied, error) {
	current, epoch, err := p.selection(ctx, owner)
	if err != nil {
		return Applied{}, err
	}
	if ordinal < 1 || ordinal > len(current.Options) {
		return Applied{}, fmt.Errorf("%w: choose between 1 and %d", ErrInvalidSelection, len(current.Options))
	}
	option := current.Options[ordinal-1]
	if len(option.Items) == 0 {
		return Applied{}, fmt.Errorf("%w: option %d is empty", ErrInvalidSelection, ordinal)
	}

	var description string
	res, err := p.plans.Apply(ctx, plansync.Mutation{
		Owner: owner,
		Dates: []string{current.Date},
		Apply: func(plans map[string]*planner.DayPlan) error {
			plan := plans[current.Date]
			if current.PlanID != "" && plan.PlanID != current.PlanID {
				return mutation.ErrMissingTarget
			}
			if current.WholeMeal() {
				items := make([]planner.PlanItem, 0, len(option.Items))
				for _, it := range option.Items {
					items = append(items, planner.NewItem(it.Food, it.Quantity, it.Unit))
				}
				plan.SetMeal(current.MealType, items)
				description = fmt.Sprintf("Regenerated %s", current.MealType)
				return nil
			}

			list := plan.Meal(current.MealType)
			index, err := mutation.IndexOf(list, current.ItemID)
			if err != nil {
				return err
			}
			replacement := option.Items[0]
			var opts []mutation.ReplaceOption
			if replacement.Quantity > 0 {
				opts = append(opts, mutation.WithQuantity(replacement.Quantity, replacement.Unit))
			}
			out, err := mutation.ReplaceAt(list, index, replacement.Food, opts...)
			if err != nil {
				return err
			}
			description = fmt.Sprintf("Replaced %s with %s in %s", list[index].Food.Name, replacement.Food.Name, current.MealType)
			plan.SetMeal(current.MealType, out)
			return nil
		},
		Describe: func() string { return description },
	})
	if err != nil {
		if errors.Is(err, mutation.ErrMissingTarget) {
			p.clear(ctx, owner, epoch)
		}
		return Applied{}, err
	}

	p.clear(ctx, owner, epoch)
	return Applied{Plan: res.Plans[current.Date], Description: description}, nil
}

// Discard drops the owner's pending swap and invalidates in-flight fetches.
func (p *Provider) Discard(ctx context.Context, owner string) error {
	l := p.ownerLock(owner)
	l.Lock()
	defer l.Unlock()
	p.begin(owner)
	if err := p.pending.Delete(ctx, owner); err != nil {
		return fmt.Errorf("failed to discard swap: %w", err)
	}
	return nil
}

// selection reads the pending swap together with the epoch it belongs to.
func (p *Provider) selection(ctx context.Context, owner string) (Pending, uint64, error) {
	l := p.ownerLock(owner)
	l.Lock()
	defer l.Unlock()
	epoch := p.epoch(owner)
	current, err := p.Pending(ctx, owner)
	return current, epoch, err
}

// clear drops the selected pending swap unless a newer fetch or discard has
// happened since it was read.
func (p *Provider) clear(ctx context.Context, owner string, epoch uint64) {
	l := p.ownerLock(owner)
	l.Lock()
	defer l.Unlock()
	if p.epoch(owner) != epoch {
		log.Printf("swap: keeping newer pending swap for %s", owner)
		return
	}
	if err := p.pending.Delete(ctx, owner); err != nil {
		log.Printf("swap: failed to clear pending swap for %s: %v", owner, err)
	}
}

func (p *Provider) begin(owner string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epochs[owner]++
	return p.epochs[owner]
}

func (p *Provider) epoch(owner string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epochs[owner]
}

// ownerLock serializes pending store writes for one owner. Other owners are
// never blocked by a slow store round trip.
func (p *Provider) ownerLock(owner string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		p.locks[owner] = l
	}
	return l
}
