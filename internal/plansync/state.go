package plansync

// State is the lifecycle position of a single mutation.
type State int

const (
	StateIdle State = iota
	StateOptimisticApplied
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimisticApplied:
		return "optimistic_applied"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Transition is reported to an Observer each time a mutation changes state.
type Transition struct {
	Owner       string
	Dates       []string
	State       State
	Description string
	Err         error
}

// Observer receives state transitions. It is called synchronously and must not
// call back into the Coordinator.
type Observer func(Transition)
