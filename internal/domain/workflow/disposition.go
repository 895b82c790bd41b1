package workflow

import (
	"context"
	"fmt"
	"strings"
)

// dispositionBuilder is set in init so state.go's lookup tables are populated first.
var dispositionBuilder StateMachineBuilder

func init() {
	dispositionBuilder = newDispositionBuilder()
}

func newDispositionBuilder() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerDeny, StateDenied)
	b.Configure(StateFlagged).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerDeny, StateDenied)
	b.Configure(StateApproved)
	b.Configure(StateDenied)
	return b
}

// InitialState returns the status a claim is created in: flagged when any rule
// fired, pending otherwise.
func InitialState(flagCount int) State {
	if flagCount > 0 {
		return StateFlagged
	}
	return StatePending
}

// Resolve validates a reviewer action against the current status and returns the
// resulting terminal state. Approved and denied are final.
func Resolve(ctx context.Context, current string, trigger Trigger, reviewerID string) (State, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return "", ErrReviewerRequired
	}

	from := State(current)
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
	if from.IsTerminal() {
		return "", fmt.Errorf("%w: status is %s", ErrAlreadyResolved, from)
	}

	machine := dispositionBuilder.Build(from)
	if err := machine.Fire(ctx, trigger); err != nil {
		return "", err
	}
	return machine.State(), nil
}

// ReviewableStates lists the statuses that appear in the review queue.
func ReviewableStates() []State {
	return []State{StateFlagged, StatePending}
}
