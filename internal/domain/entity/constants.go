package entity

// Disposition status constants for RebateClaim
const (
	StatusPending  = "pending"
	StatusFlagged  = "flagged"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// Enrichment status constants. EnrichmentPending is the only non-terminal value.
const (
	EnrichmentPending     = "pending"
	EnrichmentPassed      = "passed"
	EnrichmentFailed      = "failed"
	EnrichmentNeedsReview = "needs_review"
)

// Recommendation values returned by the document-analysis capability
const (
	RecommendationApprove     = "APPROVE"
	RecommendationDeny        = "DENY"
	RecommendationNeedsReview = "NEEDS_REVIEW"
)

// Job status constants
const (
	JobStatusScheduled  = "scheduled"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// Facility type constants
const (
	FacilityTypeLandfill  = "landfill"
	FacilityTypeTransfer  = "transfer_station"
	FacilityTypeRecycling = "recycling"
	FacilityTypeDonation  = "donation"
	FacilityTypeCompost   = "compost"
)
