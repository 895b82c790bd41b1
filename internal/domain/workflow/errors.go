package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for an unknown status value
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyResolved is returned when a reviewer acts on an approved or denied claim
	ErrAlreadyResolved = errors.New("claim already resolved")

	// ErrReviewerRequired is returned when a review action carries no reviewer id
	ErrReviewerRequired = errors.New("reviewer id is required")
)
