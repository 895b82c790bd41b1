package workflow

// Trigger is a reviewer action on a claim
type Trigger string

const (
	TriggerApprove Trigger = "APPROVE"
	TriggerDeny    Trigger = "DENY"
)

func (t Trigger) String() string {
	return string(t)
}
