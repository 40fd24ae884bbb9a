package undo

import (
	"fmt"
	"testing"
	"time"

	"meal-plan-assistant/internal/planner"
)

func entry(n int) Entry {
	return Entry{
		Date: "2024-03-04",
		Snapshots: []planner.DayPlan{{
			Date:      "2024-03-04",
			Breakfast: []planner.PlanItem{{ID: fmt.Sprintf("i%d", n), Food: planner.FoodRef{Name: "Eggs"}}},
		}},
		Description: fmt.Sprintf("change %d", n),
		Timestamp:   time.Unix(int64(n), 0),
	}
}

func TestStackEvictsOldest(t *testing.T) {
	s := New(DefaultCapacity)

	for i := 1; i <= 6; i++ {
		if s.Push(entry(i)) {
			t.Fatalf("Unexpected eviction on push %d", i)
		}
	}
	if !s.Push(entry(7)) {
		t.Fatal("Expected the 7th push to evict")
	}
	if s.Len() != 6 {
		t.Fatalf("Expected 6 entries, got %d", s.Len())
	}

	all := s.Entries()
	if all[0].Description != "change 7" {
		t.Errorf("Expected newest 'change 7', got '%s'", all[0].Description)
	}
	if all[5].Description != "change 2" {
		t.Errorf("Expected oldest kept 'change 2', got '%s'", all[5].Description)
	}
}

func TestStackLIFO(t *testing.T) {
	s := New(3)
	s.Push(entry(1))
	s.Push(entry(2))

	top, ok := s.Peek()
	if !ok || top.Description != "change 2" {
		t.Fatalf("Expected peek 'change 2', got '%s'", top.Description)
	}
	if s.Len() != 2 {
		t.Error("Peek must not remove entries")
	}

	for _, want := range []string{"change 2", "change 1"} {
		e, ok := s.Pop()
		if !ok || e.Description != want {
			t.Errorf("Expected pop '%s', got '%s'", want, e.Description)
		}
	}
	if _, ok := s.Pop(); ok {
		t.Error("Expected empty stack")
	}
}

func TestStackStoresIndependentCopies(t *testing.T) {
	s := New(DefaultCapacity)
	e := entry(1)
	s.Push(e)

	e.Snapshots[0].Breakfast[0].Food.Name = "Mutated"

	top, _ := s.Peek()
	if top.Snapshots[0].Breakfast[0].Food.Name != "Eggs" {
		t.Errorf("Stored snapshot changed after push, got '%s'", top.Snapshots[0].Breakfast[0].Food.Name)
	}

	top.Snapshots[0].Breakfast[0].Food.Name = "Mutated again"
	again, _ := s.Pop()
	if again.Snapshots[0].Breakfast[0].Food.Name != "Eggs" {
		t.Error("Stored snapshot changed through a peeked copy")
	}
}
