package supervisor

// State is the lifecycle position of a download task.
type State string

const (
	StatePending     State = "pending"
	StateValidating  State = "validating"
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
	StateTimedOut    State = "timed_out"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// IsActive reports whether the task holds (or is about to hold) a slot.
func (s State) IsActive() bool {
	return s == StateDownloading || s == StateFinalizing
}

var transitions = map[State][]State{
	StatePending:     {StateValidating, StateCancelled},
	StateValidating:  {StateQueued, StateFailed, StateCancelled},
	StateQueued:      {StateDownloading, StateFailed, StateCancelled},
	StateDownloading: {StateFinalizing, StateFailed, StateCancelled, StateTimedOut},
	StateFinalizing:  {StateCompleted, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
