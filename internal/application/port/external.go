package port

import (
	"context"
	"errors"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// ErrTransient marks a DocumentAnalyzer or ReceiptStore failure worth retrying
// (rate limiting, upstream 5xx, dropped connections).
var ErrTransient = errors.New("transient failure")

// ReceiptAnalysisRequest is everything the document-analysis capability gets to see
type ReceiptAnalysisRequest struct {
	ClaimID                string
	Image                  *ReceiptImage
	ClaimedFacilityName    string
	ClaimedFacilityAddress string
	ClaimedWeightLbs       float64
	EstimatedWeightLbs     float64
	ReceiptDate            time.Time
	JobCompletedAt         time.Time
}

// ReceiptAnalysis is the raw verdict returned by a DocumentAnalyzer.
// Recommendation is one of the entity.Recommendation* values or anything else
// the capability produced; callers must treat unknown values as needs-review.
type ReceiptAnalysis struct {
	Recommendation     string
	Confidence         float64
	Extracted          entity.ExtractedReceipt
	ImageReadable      bool
	TamperingSuspected bool
	Issues             []string
	Recommendations    []string
	Reasoning          string
}

// DocumentAnalyzer reads a receipt image and judges it against the claimed facts
type DocumentAnalyzer interface {
	AnalyzeReceipt(ctx context.Context, req *ReceiptAnalysisRequest) (*ReceiptAnalysis, error)
}

// ReviewAlert is a message for the human review channel
type ReviewAlert struct {
	ClaimID          string
	JobID            string
	Status           string
	EnrichmentStatus string
	RebateAmount     decimal.Decimal
	Reasons          []string
}

// ReviewNotifier tells administrators a claim needs their attention
type ReviewNotifier interface {
	NotifyReview(ctx context.Context, alert *ReviewAlert) error
}

// EnrichmentQueue accepts claim ids for asynchronous enrichment.
// Enqueue never blocks and reports false when the id was not accepted.
type EnrichmentQueue interface {
	Enqueue(claimID string) bool
}
