package event

// Type identifies a claim lifecycle event
type Type string

const (
	TypeClaimSubmitted Type = "claim.submitted"
	TypeClaimEnriched  Type = "claim.enriched"
	TypeClaimApproved  Type = "claim.approved"
	TypeClaimDenied    Type = "claim.denied"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimSubmitted, TypeClaimEnriched, TypeClaimApproved, TypeClaimDenied:
		return true
	default:
		return false
	}
}
