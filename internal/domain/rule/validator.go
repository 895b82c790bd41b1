package rule

import (
	"fmt"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ClaimedFacts are the worker-supplied receipt facts the rules look at.
type ClaimedFacts struct {
	FacilityName     string
	ReceiptDate      time.Time
	ReceiptWeightLbs float64
}

// Assessment is the full set of derived facts for one claim plus its ordered flags.
type Assessment struct {
	MatchedFacilityID  *int64
	FacilityApproved   bool
	EstimatedWeightLbs float64
	VariancePercent    float64
	WithinVariance     bool
	Within48Hours      bool
	Flags              []string
	JobTotalPrice      decimal.Decimal
	RebateAmount       decimal.Decimal
}

// Flagged reports whether any rule was violated.
func (a *Assessment) Flagged() bool {
	return len(a.Flags) > 0
}

// Validator evaluates claimed facts against the job and the facility registry.
type Validator struct {
	policy     Policy
	calculator *RebateCalculator
}

// NewValidator creates a validator for the given policy.
func NewValidator(policy Policy) *Validator {
	return &Validator{
		policy:     policy,
		calculator: NewRebateCalculator(policy.RebateRate, policy.RebateCap),
	}
}

// Policy returns the policy the validator was built with.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Assess computes the derived facts for a claim. now is captured once by the caller
// and used for every time-based check in the pass, so identical inputs always
// produce identical output. The only error is ErrInvalidJobState; rule violations
// become flags.
func (v *Validator) Assess(facts ClaimedFacts, job *entity.Job, facility *entity.ApprovedFacility, now time.Time) (*Assessment, error) {
	rebate, err := v.calculator.Calculate(job)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		EstimatedWeightLbs: job.EstimatedWeightLbs,
		JobTotalPrice:      job.TotalPrice,
		RebateAmount:       rebate,
		Flags:              []string{},
	}

	// Weight variance
	if variance, ok := Variance(facts.ReceiptWeightLbs, job.EstimatedWeightLbs); ok {
		a.VariancePercent = variance.Round(2).InexactFloat64()
		a.WithinVariance = variance.LessThanOrEqual(v.policy.VarianceTolerancePercent)
		if !a.WithinVariance {
			a.Flags = append(a.Flags, fmt.Sprintf("weight variance %s%% exceeds %s%% tolerance",
				variance.StringFixed(1), v.policy.VarianceTolerancePercent.String()))
		}
	} else {
		a.Flags = append(a.Flags, "job has no estimated weight; variance not computed")
	}

	// Submission window
	gap := facts.ReceiptDate.Sub(*job.CompletedAt)
	a.Within48Hours = WithinWindow(gap, v.policy.SubmissionWindow)
	if !a.Within48Hours {
		a.Flags = append(a.Flags, DescribeGap(gap))
	}
	if facts.ReceiptDate.After(now.Add(v.policy.FutureSkew)) {
		a.Flags = append(a.Flags, "receipt dated in the future")
	}

	// Facility registry
	switch {
	case facility == nil:
		a.Flags = append(a.Flags, fmt.Sprintf("facility %q not in approved registry", facts.FacilityName))
	case !facility.Approved:
		id := facility.ID
		a.MatchedFacilityID = &id
		a.Flags = append(a.Flags, fmt.Sprintf("facility %q matched %q but is not approved", facts.FacilityName, facility.Name))
	default:
		id := facility.ID
		a.MatchedFacilityID = &id
		a.FacilityApproved = true
	}

	return a, nil
}

// Variance returns |claimed − estimated| / estimated × 100. ok is false when there is
// no estimate to compare against.
func Variance(claimedLbs, estimatedLbs float64) (decimal.Decimal, bool) {
	if estimatedLbs <= 0 {
		return decimal.Zero, false
	}
	claimed := decimal.NewFromFloat(claimedLbs)
	estimated := decimal.NewFromFloat(estimatedLbs)
	return claimed.Sub(estimated).Abs().Mul(hundred).Div(estimated), true
}

// WithinWindow reports whether a receipt-to-completion gap falls inside the window in
// either direction. Receipts dated slightly before completion are tolerated for clock skew.
func WithinWindow(gap, window time.Duration) bool {
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

// DescribeGap renders a submission-window violation, e.g. "receipt dated 71h after job completion".
func DescribeGap(gap time.Duration) string {
	direction := "after"
	if gap < 0 {
		direction = "before"
		gap = -gap
	}
	return fmt.Sprintf("receipt dated %s %s job completion", formatHours(gap), direction)
}

func formatHours(d time.Duration) string {
	d = d.Truncate(time.Minute)
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
