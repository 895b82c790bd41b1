package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/event"
	"github.com/haulwise/rebate-claims/internal/domain/rule"
	"github.com/haulwise/rebate-claims/internal/domain/workflow"
	"github.com/haulwise/rebate-claims/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxTextLen = 256

// SubmitClaimInput is a Pro's rebate submission
type SubmitClaimInput struct {
	JobID            string
	ProID            string
	FacilityName     string
	FacilityAddress  string
	ReceiptNumber    string
	ReceiptDate      time.Time
	ReceiptWeightLbs float64
	FeeCharged       *decimal.Decimal
	ReceiptImageRef  string
}

// Validate normalizes text fields in place and rejects malformed input
func (in *SubmitClaimInput) Validate() error {
	in.JobID = utils.SanitizeString(in.JobID)
	in.ProID = utils.SanitizeString(in.ProID)
	in.FacilityName = utils.SanitizeString(in.FacilityName)
	in.FacilityAddress = utils.SanitizeString(in.FacilityAddress)
	in.ReceiptNumber = utils.SanitizeString(in.ReceiptNumber)
	in.ReceiptImageRef = utils.SanitizeString(in.ReceiptImageRef)

	required := []struct{ field, value string }{
		{"job_id", in.JobID},
		{"pro_id", in.ProID},
		{"facility_name", in.FacilityName},
	}
	for _, r := range required {
		if err := utils.ValidateRequired(r.field, r.value); err != nil {
			return entity.NewValidationError(r.field, "is required")
		}
		if err := utils.ValidateMaxLen(r.field, r.value, maxTextLen); err != nil {
			return entity.NewValidationError(r.field, fmt.Sprintf("must be at most %d characters", maxTextLen))
		}
	}
	if err := utils.ValidateMaxLen("facility_address", in.FacilityAddress, maxTextLen); err != nil {
		return entity.NewValidationError("facility_address", fmt.Sprintf("must be at most %d characters", maxTextLen))
	}
	if in.ReceiptDate.IsZero() {
		return entity.NewValidationError("receipt_date", "is required")
	}
	if err := utils.ValidateWeight(in.ReceiptWeightLbs); err != nil {
		return entity.NewValidationError("receipt_weight_lbs", err.Error())
	}
	if err := utils.ValidateReceiptNumber(in.ReceiptNumber); err != nil {
		return entity.NewValidationError("receipt_number", err.Error())
	}
	if in.FeeCharged != nil && in.FeeCharged.IsNegative() {
		return entity.NewValidationError("fee_charged", "must not be negative")
	}
	if err := utils.ValidateImageRef(in.ReceiptImageRef); err != nil {
		return entity.NewValidationError("receipt_image_ref", err.Error())
	}
	return nil
}

// ClaimService covers claim intake and the administrator workflow
type ClaimService interface {
	// Intake runs duplicate checks and rule validation and persists the claim.
	// Flagged claims are Created; only duplicates, bad jobs and bad input are Rejected.
	Intake(ctx context.Context, input *SubmitClaimInput) rule.Outcome

	// SubmitClaim is Intake unpacked into (claim, error)
	SubmitClaim(ctx context.Context, input *SubmitClaimInput) (*entity.RebateClaim, error)

	GetClaim(ctx context.Context, id string) (*entity.RebateClaim, error)
	ListReviewQueue(ctx context.Context) ([]*entity.RebateClaim, error)
	ApproveClaim(ctx context.Context, id, reviewerID string) (*entity.RebateClaim, error)
	DenyClaim(ctx context.Context, id, reviewerID, reason string) (*entity.RebateClaim, error)
}

// ClaimServiceDeps wires a ClaimService. Events and Now are optional.
type ClaimServiceDeps struct {
	Claims       port.ClaimRepository
	Jobs         port.JobRepository
	Facilities   port.FacilityRegistry
	Transactions port.TransactionManager
	Validator    *rule.Validator
	Queue        port.EnrichmentQueue
	Events       dispatcher.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

type claimServiceImpl struct {
	claims     port.ClaimRepository
	jobs       port.JobRepository
	facilities port.FacilityRegistry
	txm        port.TransactionManager
	validator  *rule.Validator
	queue      port.EnrichmentQueue
	events     dispatcher.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewClaimService creates a new ClaimService
func NewClaimService(deps ClaimServiceDeps) ClaimService {
	s := &claimServiceImpl{
		claims:     deps.Claims,
		jobs:       deps.Jobs,
		facilities: deps.Facilities,
		txm:        deps.Transactions,
		validator:  deps.Validator,
		queue:      deps.Queue,
		events:     deps.Events,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *claimServiceImpl) SubmitClaim(ctx context.Context, input *SubmitClaimInput) (*entity.RebateClaim, error) {
	return s.Intake(ctx, input).Result()
}

func (s *claimServiceImpl) Intake(ctx context.Context, input *SubmitClaimInput) rule.Outcome {
	if input == nil {
		return rule.Rejected(entity.NewValidationError("body", "is required"))
	}
	if err := input.Validate(); err != nil {
		return rule.Rejected(err)
	}

	// One clock reading for every time-based rule in this pass.
	now := s.now().UTC()

	var claim *entity.RebateClaim
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		job, err := s.jobs.GetByID(ctx, input.JobID)
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		if job == nil {
			return entity.NewValidationError("job_id", "does not reference a known job")
		}

		if err := s.checkDuplicates(ctx, input); err != nil {
			return err
		}

		registry, err := s.facilities.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list facilities: %w", err)
		}
		matched := rule.MatchFacility(input.FacilityName, registry)

		assessment, err := s.validator.Assess(rule.ClaimedFacts{
			FacilityName:     input.FacilityName,
			ReceiptDate:      input.ReceiptDate,
			ReceiptWeightLbs: input.ReceiptWeightLbs,
		}, job, matched, now)
		if err != nil {
			return err
		}

		claim = newClaim(input, assessment, now)
		return s.claims.Create(ctx, claim)
	})
	if err != nil {
		if isIntakeRejection(err) {
			s.logger.Info("Claim rejected",
				zap.String("job_id", input.JobID),
				zap.String("pro_id", input.ProID),
				zap.Error(err))
		} else {
			s.logger.Error("Claim intake failed", zap.String("job_id", input.JobID), zap.Error(err))
		}
		return rule.Rejected(err)
	}

	// The claim is durable from here on; enrichment observes a complete row.
	if s.queue != nil && !s.queue.Enqueue(claim.ID) {
		s.logger.Warn("Enrichment queue full, claim left for sweeper", zap.String("claim_id", claim.ID))
	}

	s.logger.Info("Claim created",
		zap.String("claim_id", claim.ID),
		zap.String("job_id", claim.JobID),
		zap.String("status", claim.Status),
		zap.Strings("flags", claim.ValidationFlags),
		zap.String("rebate_amount", claim.RebateAmount.StringFixed(2)))

	s.publish(ctx, event.TypeClaimSubmitted, claim)
	return rule.Created(claim)
}

func (s *claimServiceImpl) checkDuplicates(ctx context.Context, input *SubmitClaimInput) error {
	existing, err := s.claims.GetByJobID(ctx, input.JobID)
	if err != nil {
		return fmt.Errorf("check job duplicate: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: job %s already has claim %s", entity.ErrDuplicateClaim, input.JobID, existing.ID)
	}

	if input.ReceiptNumber == "" {
		return nil
	}
	existing, err = s.claims.GetByReceiptNumber(ctx, input.ReceiptNumber)
	if err != nil {
		return fmt.Errorf("check receipt duplicate: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: receipt number %s already used by claim %s", entity.ErrDuplicateClaim, input.ReceiptNumber, existing.ID)
	}
	return nil
}

func newClaim(input *SubmitClaimInput, a *rule.Assessment, now time.Time) *entity.RebateClaim {
	fee := decimal.NullDecimal{}
	if input.FeeCharged != nil {
		fee = decimal.NewNullDecimal(*input.FeeCharged)
	}

	return &entity.RebateClaim{
		ID:                 uuid.NewString(),
		JobID:              input.JobID,
		ProID:              input.ProID,
		FacilityName:       input.FacilityName,
		FacilityAddress:    input.FacilityAddress,
		ReceiptNumber:      input.ReceiptNumber,
		ReceiptDate:        input.ReceiptDate.UTC(),
		ReceiptWeightLbs:   input.ReceiptWeightLbs,
		FeeCharged:         fee,
		ReceiptImageRef:    input.ReceiptImageRef,
		MatchedFacilityID:  a.MatchedFacilityID,
		FacilityApproved:   a.FacilityApproved,
		EstimatedWeightLbs: a.EstimatedWeightLbs,
		VariancePercent:    a.VariancePercent,
		WithinVariance:     a.WithinVariance,
		Within48Hours:      a.Within48Hours,
		ValidationFlags:    a.Flags,
		JobTotalPrice:      a.JobTotalPrice,
		RebateAmount:       a.RebateAmount,
		Status:             workflow.InitialState(len(a.Flags)).String(),
		SubmittedAt:        now,
		EnrichmentStatus:   entity.EnrichmentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *claimServiceImpl) GetClaim(ctx context.Context, id string) (*entity.RebateClaim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrClaimNotFound, id)
	}
	return claim, nil
}

func (s *claimServiceImpl) ListReviewQueue(ctx context.Context) ([]*entity.RebateClaim, error) {
	states := workflow.ReviewableStates()
	statuses := make([]string, len(states))
	for i, st := range states {
		statuses[i] = st.String()
	}

	claims, err := s.claims.ListByStatus(ctx, statuses, 0)
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return claims, nil
}

func (s *claimServiceImpl) ApproveClaim(ctx context.Context, id, reviewerID string) (*entity.RebateClaim, error) {
	return s.resolve(ctx, id, workflow.TriggerApprove, reviewerID, "")
}

func (s *claimServiceImpl) DenyClaim(ctx context.Context, id, reviewerID, reason string) (*entity.RebateClaim, error) {
	return s.resolve(ctx, id, workflow.TriggerDeny, reviewerID, utils.SanitizeString(reason))
}

func (s *claimServiceImpl) resolve(ctx context.Context, id string, trigger workflow.Trigger, reviewerID, reason string) (*entity.RebateClaim, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, workflow.ErrReviewerRequired
	}

	claim, err := s.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := workflow.Resolve(ctx, claim.Status, trigger, reviewerID)
	if err != nil {
		return nil, err
	}

	reviewedAt := s.now().UTC()
	ok, err := s.claims.Resolve(ctx, id, &port.Resolution{
		Status:       target.String(),
		ReviewerID:   reviewerID,
		DenialReason: reason,
		ReviewedAt:   reviewedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve claim: %w", err)
	}
	if !ok {
		// Another reviewer got there between our read and the conditional update.
		return nil, fmt.Errorf("%w: claim %s", workflow.ErrAlreadyResolved, id)
	}

	claim.Status = target.String()
	claim.ReviewerID = reviewerID
	claim.DenialReason = reason
	claim.ReviewedAt = &reviewedAt
	claim.UpdatedAt = reviewedAt

	s.logger.Info("Claim resolved",
		zap.String("claim_id", id),
		zap.String("status", claim.Status),
		zap.String("reviewer_id", reviewerID))

	if target == workflow.StateApproved {
		s.publish(ctx, event.TypeClaimApproved, claim)
	} else {
		s.publish(ctx, event.TypeClaimDenied, claim)
	}
	return claim, nil
}

func (s *claimServiceImpl) publish(ctx context.Context, t event.Type, claim *entity.RebateClaim) {
	if s.events == nil {
		return
	}
	s.events.DispatchAsync(ctx, claimEvent(t, claim))
}

func claimEvent(t event.Type, claim *entity.RebateClaim) *event.Event {
	return event.New(t, claim.ID, map[string]interface{}{
		"job_id":            claim.JobID,
		"status":            claim.Status,
		"enrichment_status": claim.EnrichmentStatus,
		"rebate_amount":     claim.RebateAmount.StringFixed(2),
		"flags":             append([]string(nil), claim.ValidationFlags...),
		"reviewer_id":       claim.ReviewerID,
	})
}

func isIntakeRejection(err error) bool {
	return errors.Is(err, entity.ErrDuplicateClaim) ||
		errors.Is(err, entity.ErrInvalidJobState) ||
		errors.Is(err, entity.ErrValidationFailed)
}
