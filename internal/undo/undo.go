// Package undo provides a bounded LIFO history of pre-mutation day plan snapshots.
package undo

import (
	"time"

	"meal-plan-assistant/internal/planner"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 6

// Entry is the state of every touched date before a committed mutation.
type Entry struct {
	Date        string
	Snapshots   []planner.DayPlan
	Description string
	Timestamp   time.Time
}

func (e Entry) clone() Entry {
	c := e
	c.Snapshots = make([]planner.DayPlan, len(e.Snapshots))
	for i, s := range e.Snapshots {
		c.Snapshots[i] = s.Clone()
	}
	return c
}

// Stack is a bounded deque used as a stack. It is not safe for concurrent use.
type Stack struct {
	entries  []Entry
	capacity int
}

// New creates a stack holding at most capacity entries.
func New(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// Push stores a copy of e, evicting the oldest entry when full. It reports
// whether an entry was evicted.
func (s *Stack) Push(e Entry) bool {
	s.entries = append(s.entries, e.clone())
	if len(s.entries) > s.capacity {
		s.entries = s.entries[1:]
		return true
	}
	return false
}

// Pop removes and returns the newest entry.
func (s *Stack) Pop() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	last := s.entries[len(s.entries)-1]
	s.entries[len(s.entries)-1] = Entry{}
	s.entries = s.entries[:len(s.entries)-1]
	return last, true
}

// Peek returns a copy of the newest entry without removing it.
func (s *Stack) Peek() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1].clone(), true
}

// Len is the number of stored entries.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Entries returns copies of all entries, newest first.
func (s *Stack) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i].clone())
	}
	return out
}
