package pipeline

import "time"

// State is a step of submission processing.
type State string

const (
	StateReceived      State = "received"
	StateValidating    State = "validating"
	StatePreprocessing State = "preprocessing"
	StateExtracting    State = "extracting"
	StateClassifying   State = "classifying"
	StateThumbnailing  State = "thumbnailing"
	StatePersisting    State = "persisting"

	StateCompleted   State = "completed"
	StateRejected    State = "rejected"
	StateServerError State = "server_error"
)

// Terminal reports whether no step follows s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateServerError:
		return true
	}
	return false
}

// Transition is one edge taken by a run. Err is set on edges into Rejected or ServerError.
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}
