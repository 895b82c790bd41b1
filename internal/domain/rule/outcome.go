package rule

import (
	"errors"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
)

type outcomeKind int

const (
	outcomeCreated outcomeKind = iota + 1
	// nothing was persisted
	outcomeRejected
)

// Outcome is the result of claim intake. A flagged claim is always Created; only
// duplicates, invalid jobs and malformed input are Rejected.
type Outcome struct {
	kind   outcomeKind
	claim  *entity.RebateClaim
	reason error
}

// Created wraps a persisted claim.
func Created(claim *entity.RebateClaim) Outcome {
	return Outcome{kind: outcomeCreated, claim: claim}
}

// Rejected wraps a hard rejection reason.
func Rejected(reason error) Outcome {
	if reason == nil {
		reason = errors.New("claim rejected")
	}
	return Outcome{kind: outcomeRejected, reason: reason}
}

// IsRejected reports whether intake rejected the submission.
func (o Outcome) IsRejected() bool { return o.kind == outcomeRejected }

// Claim returns the created claim, nil when rejected.
func (o Outcome) Claim() *entity.RebateClaim { return o.claim }

// Reason returns the rejection reason, nil when created.
func (o Outcome) Reason() error { return o.reason }

// Result unpacks the outcome into the conventional (claim, error) pair.
func (o Outcome) Result() (*entity.RebateClaim, error) {
	if o.IsRejected() {
		return nil, o.reason
	}
	return o.claim, nil
}
