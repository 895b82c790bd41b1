package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RebateClaim is a Pro's request for partial reimbursement of a disposal fee.
//
// The record is split into three segments. Claimed facts are written once by the
// submitter, derived facts once by the rule validator at intake, and lifecycle
// fields are owned either by the disposition state machine (Status, Reviewed*,
// DenialReason) or by the enrichment worker (Enrichment*). The two owners never
// write each other's columns.
type RebateClaim struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
	ProID string `json:"pro_id"`

	// Claimed facts
	FacilityName     string              `json:"facility_name"`
	FacilityAddress  string              `json:"facility_address,omitempty"`
	ReceiptNumber    string              `json:"receipt_number,omitempty"`
	ReceiptDate      time.Time           `json:"receipt_date"`
	ReceiptWeightLbs float64             `json:"receipt_weight_lbs"`
	FeeCharged       decimal.NullDecimal `json:"fee_charged"`
	ReceiptImageRef  string              `json:"receipt_image_ref"`

	// Derived facts
	MatchedFacilityID  *int64          `json:"matched_facility_id,omitempty"`
	FacilityApproved   bool            `json:"facility_approved"`
	EstimatedWeightLbs float64         `json:"estimated_weight_lbs"`
	VariancePercent    float64         `json:"variance_percent"`
	WithinVariance     bool            `json:"within_variance"`
	Within48Hours      bool            `json:"within_48_hours"`
	ValidationFlags    []string        `json:"validation_flags"`
	JobTotalPrice      decimal.Decimal `json:"job_total_price"`
	RebateAmount       decimal.Decimal `json:"rebate_amount"`

	// Disposition
	Status       string     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	ReviewerID   string     `json:"reviewer_id,omitempty"`
	DenialReason string     `json:"denial_reason,omitempty"`

	// Enrichment
	EnrichmentStatus     string            `json:"enrichment_status"`
	EnrichmentConfidence *float64          `json:"enrichment_confidence,omitempty"`
	EnrichmentNotes      string            `json:"enrichment_notes,omitempty"`
	EnrichmentResult     *EnrichmentResult `json:"enrichment_result,omitempty"`
	EnrichmentAuditNote  string            `json:"enrichment_audit_note,omitempty"`
	EnrichmentAttempts   int               `json:"enrichment_attempts"`
	EnrichedAt           *time.Time        `json:"enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsResolved reports whether an administrator has made the terminal decision.
func (c *RebateClaim) IsResolved() bool {
	return c.Status == StatusApproved || c.Status == StatusDenied
}

// InReviewQueue reports whether the claim still awaits an administrator.
func (c *RebateClaim) InReviewQueue() bool {
	return c.Status == StatusPending || c.Status == StatusFlagged
}

// ExtractedReceipt holds the fields the document-analysis capability read off the receipt image.
// Zero values mean the field was not legible.
type ExtractedReceipt struct {
	FacilityName  string     `json:"facility_name,omitempty"`
	WeightLbs     float64    `json:"weight_lbs,omitempty"`
	ReceiptDate   *time.Time `json:"receipt_date,omitempty"`
	ReceiptNumber string     `json:"receipt_number,omitempty"`
	TotalCharge   float64    `json:"total_charge,omitempty"`
}

// EnrichmentResult is the structured verdict stored alongside the claim.
type EnrichmentResult struct {
	Recommendation     string           `json:"recommendation"`
	Extracted          ExtractedReceipt `json:"extracted"`
	ImageReadable      bool             `json:"image_readable"`
	TamperingSuspected bool             `json:"tampering_suspected"`
	Issues             []string         `json:"issues"`
	DerivedIssues      []string         `json:"derived_issues"`
	Recommendations    []string         `json:"recommendations,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// EnrichmentRecord is the disjoint field set written by one enrichment run.
type EnrichmentRecord struct {
	Status     string
	Confidence float64
	Notes      string
	Result     *EnrichmentResult
	Attempts   int
	EnrichedAt time.Time
}

// ReceiptNumberKey normalizes a receipt number for duplicate detection: trimmed,
// upper-cased, with all whitespace removed. Empty input yields "".
func ReceiptNumberKey(receiptNumber string) string {
	return strings.ToUpper(strings.Join(strings.Fields(receiptNumber), ""))
}
