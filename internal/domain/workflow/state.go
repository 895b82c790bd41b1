package workflow

import "github.com/haulwise/rebate-claims/internal/domain/entity"

// State is a claim disposition status. Values match the persisted status column.
type State string

const (
	StatePending  State = entity.StatusPending
	StateFlagged  State = entity.StatusFlagged
	StateApproved State = entity.StatusApproved
	StateDenied   State = entity.StatusDenied
)

var validStates = map[State]bool{
	StatePending:  true,
	StateFlagged:  true,
	StateApproved: true,
	StateDenied:   true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateDenied:   true,
}

// IsTerminal reports whether a reviewer has already resolved the claim
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known disposition status
func (s State) IsValid() bool {
	return validStates[s]
}
