package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
)

// EnrichmentStatus maps a document-analysis verdict onto the stored enrichment
// status. Only a readable, untampered APPROVE passes and only a readable,
// untampered DENY fails; everything else goes to a human.
func EnrichmentStatus(recommendation string, imageReadable, tamperingSuspected bool) string {
	if !imageReadable || tamperingSuspected {
		return entity.EnrichmentNeedsReview
	}
	switch strings.ToUpper(strings.TrimSpace(recommendation)) {
	case entity.RecommendationApprove:
		return entity.EnrichmentPassed
	case entity.RecommendationDeny:
		return entity.EnrichmentFailed
	default:
		return entity.EnrichmentNeedsReview
	}
}

// ClampConfidence bounds a reported confidence to 0..100
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// ReceiptCheck is what the claim said, for comparison with what the receipt shows
type ReceiptCheck struct {
	FacilityName     string
	ReceiptNumber    string
	ReceiptDate      time.Time
	ReceiptWeightLbs float64
	JobCompletedAt   *time.Time
}

// DeriveIssues compares the values read off the receipt image with the claimed
// values using the intake variance and window rules. Fields the analysis could
// not read are skipped.
func (v *Validator) DeriveIssues(claimed ReceiptCheck, extracted entity.ExtractedReceipt) []string {
	issues := []string{}

	if extracted.WeightLbs > 0 {
		if variance, ok := Variance(claimed.ReceiptWeightLbs, extracted.WeightLbs); ok && variance.GreaterThan(v.policy.VarianceTolerancePercent) {
			issues = append(issues, fmt.Sprintf("receipt shows %s lbs but claim states %s lbs",
				formatLbs(extracted.WeightLbs), formatLbs(claimed.ReceiptWeightLbs)))
		}
	}

	if extracted.ReceiptDate != nil {
		got := extracted.ReceiptDate.UTC().Format("2006-01-02")
		want := claimed.ReceiptDate.UTC().Format("2006-01-02")
		if got != want {
			issues = append(issues, fmt.Sprintf("receipt shows date %s but claim states %s", got, want))
		}
		if claimed.JobCompletedAt != nil {
			gap := extracted.ReceiptDate.Sub(*claimed.JobCompletedAt)
			if !WithinWindow(gap, v.policy.SubmissionWindow) {
				issues = append(issues, "printed date: "+DescribeGap(gap))
			}
		}
	}

	if extracted.FacilityName != "" && !namesAgree(extracted.FacilityName, claimed.FacilityName) {
		issues = append(issues, fmt.Sprintf("receipt shows facility %q but claim states %q",
			extracted.FacilityName, claimed.FacilityName))
	}

	if extracted.ReceiptNumber != "" && claimed.ReceiptNumber != "" &&
		entity.ReceiptNumberKey(extracted.ReceiptNumber) != entity.ReceiptNumberKey(claimed.ReceiptNumber) {
		issues = append(issues, fmt.Sprintf("receipt shows number %q but claim states %q",
			extracted.ReceiptNumber, claimed.ReceiptNumber))
	}

	return issues
}

func namesAgree(a, b string) bool {
	na, nb := NormalizeFacilityName(a), NormalizeFacilityName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || containsEither(na, nb)
}

func formatLbs(lbs float64) string {
	s := fmt.Sprintf("%.1f", lbs)
	return strings.TrimSuffix(s, ".0")
}
