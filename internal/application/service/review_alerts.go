package service

import (
	"context"
	"fmt"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReviewAlertService pushes claims that need a human decision to the review channel
type ReviewAlertService interface {
	// Register subscribes the alert handlers on d
	Register(d dispatcher.Dispatcher)
	OnClaimSubmitted(ctx context.Context, evt *event.Event) error
	OnClaimEnriched(ctx context.Context, evt *event.Event) error
}

type reviewAlertServiceImpl struct {
	claims   port.ClaimRepository
	notifier port.ReviewNotifier
	logger   *zap.Logger
}

// NewReviewAlertService creates a new ReviewAlertService
func NewReviewAlertService(claims port.ClaimRepository, notifier port.ReviewNotifier, logger *zap.Logger) ReviewAlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reviewAlertServiceImpl{
		claims:   claims,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *reviewAlertServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeClaimSubmitted, "review_alert.submitted", s.OnClaimSubmitted)
	d.Subscribe(event.TypeClaimEnriched, "review_alert.enriched", s.OnClaimEnriched)
}

// OnClaimSubmitted alerts on claims that failed an intake rule
func (s *reviewAlertServiceImpl) OnClaimSubmitted(ctx context.Context, evt *event.Event) error {
	if evt.GetPayloadString("status") != entity.StatusFlagged {
		return nil
	}
	return s.send(ctx, &port.ReviewAlert{
		ClaimID:          evt.ClaimID,
		JobID:            evt.GetPayloadString("job_id"),
		Status:           entity.StatusFlagged,
		EnrichmentStatus: evt.GetPayloadString("enrichment_status"),
		RebateAmount:     payloadAmount(evt),
		Reasons:          evt.GetPayloadStrings("flags"),
	})
}

// OnClaimEnriched alerts when document analysis did not pass a claim that is still open
func (s *reviewAlertServiceImpl) OnClaimEnriched(ctx context.Context, evt *event.Event) error {
	if evt.GetPayloadString("enrichment_status") == entity.EnrichmentPassed {
		return nil
	}

	claim, err := s.claims.GetByID(ctx, evt.ClaimID)
	if err != nil {
		return fmt.Errorf("get claim: %w", err)
	}
	if claim == nil || !claim.InReviewQueue() {
		return nil
	}

	return s.send(ctx, &port.ReviewAlert{
		ClaimID:          claim.ID,
		JobID:            claim.JobID,
		Status:           claim.Status,
		EnrichmentStatus: claim.EnrichmentStatus,
		RebateAmount:     claim.RebateAmount,
		Reasons:          evt.GetPayloadStrings("issues"),
	})
}

func (s *reviewAlertServiceImpl) send(ctx context.Context, alert *port.ReviewAlert) error {
	if err := s.notifier.NotifyReview(ctx, alert); err != nil {
		s.logger.Error("Failed to send review alert", zap.String("claim_id", alert.ClaimID), zap.Error(err))
		return fmt.Errorf("notify review: %w", err)
	}
	s.logger.Info("Review alert sent",
		zap.String("claim_id", alert.ClaimID),
		zap.String("status", alert.Status),
		zap.String("enrichment_status", alert.EnrichmentStatus))
	return nil
}

func payloadAmount(evt *event.Event) decimal.Decimal {
	amount, err := decimal.NewFromString(evt.GetPayloadString("rebate_amount"))
	if err != nil {
		return decimal.Zero
	}
	return amount
}
