// Package plansync owns the in-memory day plan cache. Every change to a plan
// goes through the Coordinator, which applies it optimistically, commits it to
// the persistence backend, rolls it back on failure and records undo history.
package plansync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/undo"
)

var (
	// ErrPersistFailure wraps any rejected or failed remote commit.
	ErrPersistFailure = errors.New("could not save the plan")
	// ErrNothingToUndo is returned by Undo on an empty history.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Store is the plan persistence collaborator.
type Store interface {
	Load(ctx context.Context, owner, date string) (planner.DayPlan, error)
	Commit(ctx context.Context, plan planner.DayPlan) (planner.CommitResult, error)
}

// Mutation describes one change to one or more dates of an owner's plans.
// Apply edits the working copies in place; an error aborts the mutation
// before any state is touched. Describe, when set, is called after a
// successful Apply and replaces Description.
type Mutation struct {
	Owner       string
	Dates       []string
	Description string
	Apply       func(plans map[string]*planner.DayPlan) error
	Describe    func() string
}

// Result holds the committed plans keyed by date.
type Result struct {
	Plans       map[string]planner.DayPlan
	Description string
}

type key struct {
	owner string
	date  string
}

// Coordinator is safe for concurrent use. Mutations touching the same owner
// and date are serialized; mutations on different dates run independently.
type Coordinator struct {
	store    Store
	observer Observer
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	cache   map[key]planner.DayPlan
	history map[string]*undo.Stack
	// pushes counts undo entries recorded per owner.
	pushes map[string]uint64
	locks  map[key]*sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers a callback for state transitions.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithUndoCapacity overrides the per-owner undo history size.
func WithUndoCapacity(n int) Option {
	return func(c *Coordinator) { c.capacity = n }
}

// WithClock overrides the time source used for undo timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator over the given persistence backend.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		capacity: undo.DefaultCapacity,
		now:      time.Now,
		cache:    make(map[key]planner.DayPlan),
		history:  make(map[string]*undo.Stack),
		pushes:   make(map[string]uint64),
		locks:    make(map[key]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan returns a copy of the owner's plan for date, loading it from the
// store on first view. While a commit is in flight the optimistic state is returned.
func (c *Coordinator) Plan(ctx context.Context, owner, date string) (planner.DayPlan, error) {
	if err := planner.ValidateDate(date); err != nil {
		return planner.DayPlan{}, err
	}
	k := key{owner, date}

	c.mu.Lock()
	plan, ok := c.cache[k]
	c.mu.Unlock()
	if ok {
		return plan.Clone(), nil
	}

	lock := c.keyLock(k)
	lock.Lock()
	defer lock.Unlock()

	plan, err := c.loadLocked(ctx, k)
	if err != nil {
		return planner.DayPlan{}, err
	}
	return plan.Clone(), nil
}

// Apply runs a mutation and records it in the owner's undo history on success.
func (c *Coordinator) Apply(ctx context.Context, m Mutation) (Result, error) {
	return c.apply(ctx, m, true)
}

// Undo reverts the owner's most recent committed mutation. The revert is not
// itself recorded, so undo cannot be undone. When the revert fails the entry
// goes back on top, unless another mutation was recorded meanwhile; then it is
// dropped, since it no longer describes the latest change.
func (c *Coordinator) Undo(ctx context.Context, owner string) (undo.Entry, error) {
	c.mu.Lock()
	stack := c.stackLocked(owner)
	entry, ok := stack.Pop()
	generation := c.pushes[owner]
	c.mu.Unlock()
	if !ok {
		return undo.Entry{}, ErrNothingToUndo
	}

	snapshots := make(map[string]planner.DayPlan, len(entry.Snapshots))
	dates := make([]string, 0, len(entry.Snapshots))
	for _, s := range entry.Snapshots {
		snapshots[s.Date] = s
		dates = append(dates, s.Date)
	}

	_, err := c.apply(ctx, Mutation{
		Owner:       owner,
		Dates:       dates,
		Description: "Undo: " + entry.Description,
		Apply: func(plans map[string]*planner.DayPlan) error {
			for date, p := range plans {
				restored := snapshots[date].Clone()
				restored.Version = p.Version
				*p = restored
			}
			return nil
		},
	}, false)
	if err != nil {
		c.mu.Lock()
		if c.pushes[owner] == generation {
			c.stackLocked(owner).Push(entry)
		} else {
			log.Printf("plansync: dropping undo entry %q for %s after newer changes", entry.Description, owner)
		}
		c.mu.Unlock()
		return undo.Entry{}, err
	}
	return entry, nil
}

// History returns the owner's undo entries, newest first.
func (c *Coordinator) History(owner string) []undo.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stackLocked(owner).Entries()
}

func (c *Coordinator) apply(ctx context.Context, m Mutation, record bool) (Result, error) {
	if m.Owner == "" {
		return Result{}, fmt.Errorf("mutation owner is required")
	}
	if m.Apply == nil {
		return Result{}, fmt.Errorf("mutation has no apply function")
	}
	dates := uniqueDates(m.Dates)
	if len(dates) == 0 {
		return Result{}, fmt.Errorf("mutation must name at least one date")
	}
	for _, d := range dates {
		if err := planner.ValidateDate(d); err != nil {
			return Result{}, err
		}
	}

	// Locks are taken in sorted order so cross-date moves cannot deadlock.
	lockOrder := slices.Clone(dates)
	slices.Sort(lockOrder)
	for _, d := range lockOrder {
		l := c.keyLock(key{m.Owner, d})
		l.Lock()
		defer l.Unlock()
	}

	previous := make(map[string]planner.DayPlan, len(dates))
	working := make(map[string]*planner.DayPlan, len(dates))
	for _, d := range dates {
		plan, err := c.loadLocked(ctx, key{m.Owner, d})
		if err != nil {
			return Result{}, err
		}
		previous[d] = plan.Clone()
		w := plan.Clone()
		working[d] = &w
	}

	if err := m.Apply(working); err != nil {
		return Result{}, err
	}
	if m.Describe != nil {
		if d := m.Describe(); d != "" {
			m.Description = d
		}
	}

	c.mu.Lock()
	for _, d := range dates {
		c.cache[key{m.Owner, d}] = working[d].Clone()
	}
	c.mu.Unlock()
	c.notify(Transition{Owner: m.Owner, Dates: dates, State: StateOptimisticApplied, Description: m.Description})

	committed := make(map[string]planner.DayPlan, len(dates))
	for _, d := range dates {
		res, err := c.store.Commit(ctx, *working[d])
		if err == nil && !res.Success {
			err = fmt.Errorf("commit for %s was rejected", d)
		}
		if err != nil {
			c.rollback(ctx, m.Owner, dates, previous, committed)
			c.notify(Transition{Owner: m.Owner, Dates: dates, State: StateRolledBack, Description: m.Description, Err: err})
			return Result{}, fmt.Errorf("%w: %v", ErrPersistFailure, err)
		}
		data := res.Data
		if data.Date == "" {
			data = working[d].Clone()
		}
		committed[d] = data
	}

	c.mu.Lock()
	for d, plan := range committed {
		c.cache[key{m.Owner, d}] = plan.Clone()
	}
	if record {
		snapshots := make([]planner.DayPlan, 0, len(dates))
		for _, d := range dates {
			snapshots = append(snapshots, previous[d])
		}
		c.pushes[m.Owner]++
		c.stackLocked(m.Owner).Push(undo.Entry{
			Date:        dates[0],
			Snapshots:   snapshots,
			Description: m.Description,
			Timestamp:   c.now(),
		})
	}
	c.mu.Unlock()
	c.notify(Transition{Owner: m.Owner, Dates: dates, State: StateCommitted, Description: m.Description})

	out := make(map[string]planner.DayPlan, len(committed))
	for d, plan := range committed {
		out[d] = plan.Clone()
	}
	return Result{Plans: out, Description: m.Description}, nil
}

// rollback restores every touched date to its previous snapshot. Dates whose
// commit already succeeded are re-committed with their previous content; if
// that fails too the cache entry is evicted so the next read reloads it.
func (c *Coordinator) rollback(ctx context.Context, owner string, dates []string, previous, committed map[string]planner.DayPlan) {
	restored := make(map[string]planner.DayPlan, len(dates))
	evict := make(map[string]bool)
	for _, d := range dates {
		prev := previous[d].Clone()
		done, ok := committed[d]
		if !ok {
			restored[d] = prev
			continue
		}
		prev.Version = done.Version
		res, err := c.store.Commit(ctx, prev)
		if err != nil || !res.Success {
			log.Printf("plansync: compensating commit for %s/%s failed (%v); evicting cached plan", owner, d, err)
			evict[d] = true
			continue
		}
		if res.Data.Date != "" {
			prev = res.Data
		}
		restored[d] = prev
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		k := key{owner, d}
		if evict[d] {
			delete(c.cache, k)
			continue
		}
		c.cache[k] = restored[d]
	}
}

func (c *Coordinator) loadLocked(ctx context.Context, k key) (planner.DayPlan, error) {
	c.mu.Lock()
	plan, ok := c.cache[k]
	c.mu.Unlock()
	if ok {
		return plan, nil
	}

	plan, err := c.store.Load(ctx, k.owner, k.date)
	if err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to load plan for %s: %w", k.date, err)
	}
	plan.Owner = k.owner
	plan.Date = k.date

	c.mu.Lock()
	c.cache[k] = plan.Clone()
	c.mu.Unlock()
	return plan, nil
}

func (c *Coordinator) keyLock(k key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

func (c *Coordinator) stackLocked(owner string) *undo.Stack {
	s, ok := c.history[owner]
	if !ok {
		s = undo.New(c.capacity)
		c.history[owner] = s
	}
	return s
}

func (c *Coordinator) notify(t Transition) {
	if c.observer != nil {
		c.observer(t)
	}
}

func uniqueDates(dates []string) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}
