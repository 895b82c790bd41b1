package port

import (
	"context"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
)

// ClaimRepository defines persistence operations for RebateClaim.
// Lookups return (nil, nil) when nothing matches.
type ClaimRepository interface {
	// Create inserts a new claim. A job or receipt-number collision returns
	// entity.ErrDuplicateClaim.
	Create(ctx context.Context, claim *entity.RebateClaim) error

	GetByID(ctx context.Context, id string) (*entity.RebateClaim, error)
	GetByJobID(ctx context.Context, jobID string) (*entity.RebateClaim, error)

	// GetByReceiptNumber matches on the normalized receipt number
	GetByReceiptNumber(ctx context.Context, receiptNumber string) (*entity.RebateClaim, error)

	// ListByStatus returns claims in any of statuses, newest submission first
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.RebateClaim, error)

	// Resolve moves a claim from pending or flagged into a terminal status.
	// It reports false when the claim was no longer open.
	Resolve(ctx context.Context, id string, resolution *Resolution) (bool, error)

	// SaveEnrichment writes only the enrichment columns
	SaveEnrichment(ctx context.Context, id string, record *entity.EnrichmentRecord) error

	// ListStaleEnrichment returns ids of claims still awaiting enrichment that were submitted before cutoff
	ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Resolution is the reviewer decision written by ClaimRepository.Resolve
type Resolution struct {
	Status       string
	ReviewerID   string
	DenialReason string
	ReviewedAt   time.Time
}

// JobRepository reads jobs owned by the scheduling system
type JobRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Job, error)
}

// FacilityRegistry reads the disposal facility registry
type FacilityRegistry interface {
	ListAll(ctx context.Context) ([]*entity.ApprovedFacility, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
