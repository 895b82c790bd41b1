package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/event"
	"github.com/haulwise/rebate-claims/internal/domain/rule"
	"go.uber.org/zap"
)

// EnrichmentService runs document analysis against a claim's receipt image
type EnrichmentService interface {
	// Enrich analyzes the receipt of a claim whose enrichment is still pending and
	// stores the verdict. Claims already enriched are skipped. Analysis failures are
	// recorded as needs_review rather than returned; an error means nothing was stored.
	Enrich(ctx context.Context, claimID string) error
}

// EnrichmentServiceDeps wires an EnrichmentService
type EnrichmentServiceDeps struct {
	Claims    port.ClaimRepository
	Jobs      port.JobRepository
	Store     port.ReceiptStore
	Analyzer  port.DocumentAnalyzer
	Validator *rule.Validator
	Retry     RetryStrategy
	Timeout   time.Duration
	Events    dispatcher.Dispatcher
	Logger    *zap.Logger
	Now       func() time.Time
}

type enrichmentServiceImpl struct {
	claims    port.ClaimRepository
	jobs      port.JobRepository
	store     port.ReceiptStore
	analyzer  port.DocumentAnalyzer
	validator *rule.Validator
	retry     RetryStrategy
	timeout   time.Duration
	events    dispatcher.Dispatcher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrichmentService creates a new EnrichmentService
func NewEnrichmentService(deps EnrichmentServiceDeps) EnrichmentService {
	s := &enrichmentServiceImpl{
		claims:    deps.Claims,
		jobs:      deps.Jobs,
		store:     deps.Store,
		analyzer:  deps.Analyzer,
		validator: deps.Validator,
		retry:     deps.Retry,
		timeout:   deps.Timeout,
		events:    deps.Events,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.retry.MaxAttempts <= 0 {
		s.retry.MaxAttempts = 1
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	return s
}

func (s *enrichmentServiceImpl) Enrich(ctx context.Context, claimID string) error {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return fmt.Errorf("%w: %s", entity.ErrClaimNotFound, claimID)
	}
	if claim.EnrichmentStatus != entity.EnrichmentPending {
		s.logger.Debug("Claim already enriched, skipping",
			zap.String("claim_id", claimID),
			zap.String("enrichment_status", claim.EnrichmentStatus))
		return nil
	}

	job, err := s.jobs.GetByID(ctx, claim.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()
	analysis, attempts, analyzeErr := s.analyzeWithRetry(runCtx, claim, job)

	// Shutdown: leave the claim pending so the sweeper picks it up on restart.
	if ctx.Err() != nil {
		s.logger.Warn("Enrichment interrupted, claim left pending",
			zap.String("claim_id", claimID), zap.Error(ctx.Err()))
		return ctx.Err()
	}

	record := s.interpret(claim, job, analysis, analyzeErr)
	record.Attempts = claim.EnrichmentAttempts + attempts
	record.EnrichedAt = s.now().UTC()

	if err := s.claims.SaveEnrichment(ctx, claimID, record); err != nil {
		s.logger.Error("Failed to save enrichment", zap.String("claim_id", claimID), zap.Error(err))
		return fmt.Errorf("save enrichment: %w", err)
	}

	s.logger.Info("Claim enriched",
		zap.String("claim_id", claimID),
		zap.String("enrichment_status", record.Status),
		zap.Float64("confidence", record.Confidence),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", s.now().Sub(started)))

	if s.events != nil {
		s.events.DispatchAsync(ctx, event.New(event.TypeClaimEnriched, claimID, map[string]interface{}{
			"job_id":            claim.JobID,
			"status":            claim.Status,
			"enrichment_status": record.Status,
			"rebate_amount":     claim.RebateAmount.StringFixed(2),
			"issues":            enrichmentReasons(record),
		}))
	}
	return nil
}

func (s *enrichmentServiceImpl) analyzeWithRetry(ctx context.Context, claim *entity.RebateClaim, job *entity.Job) (*port.ReceiptAnalysis, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		analysis, err := s.analyzeOnce(ctx, claim, job)
		if err == nil {
			return analysis, attempt, nil
		}
		lastErr = err

		if attempt == s.retry.MaxAttempts || !s.retry.IsTemporaryError(err) {
			return nil, attempt, err
		}

		backoff := s.retry.CalculateBackoff(attempt)
		s.logger.Warn("Receipt analysis failed, retrying",
			zap.String("claim_id", claim.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return nil, s.retry.MaxAttempts, lastErr
}

func (s *enrichmentServiceImpl) analyzeOnce(ctx context.Context, claim *entity.RebateClaim, job *entity.Job) (analysis *port.ReceiptAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during receipt analysis: %v", r)
		}
	}()

	image, err := s.store.Load(ctx, claim.ReceiptImageRef)
	if err != nil {
		return nil, fmt.Errorf("load receipt image: %w", err)
	}

	req := &port.ReceiptAnalysisRequest{
		ClaimID:                claim.ID,
		Image:                  image,
		ClaimedFacilityName:    claim.FacilityName,
		ClaimedFacilityAddress: claim.FacilityAddress,
		ClaimedWeightLbs:       claim.ReceiptWeightLbs,
		EstimatedWeightLbs:     claim.EstimatedWeightLbs,
		ReceiptDate:            claim.ReceiptDate,
	}
	if job != nil && job.CompletedAt != nil {
		req.JobCompletedAt = *job.CompletedAt
	}

	analysis, err = s.analyzer.AnalyzeReceipt(ctx, req)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, errors.New("document analyzer returned no result")
	}
	return analysis, nil
}

// interpret turns an analysis, or the failure to get one, into the stored record.
func (s *enrichmentServiceImpl) interpret(claim *entity.RebateClaim, job *entity.Job, analysis *port.ReceiptAnalysis, analyzeErr error) *entity.EnrichmentRecord {
	if analyzeErr != nil {
		msg := analyzeErr.Error()
		if errors.Is(analyzeErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s: %s", s.timeout, msg)
		}
		return &entity.EnrichmentRecord{
			Status:     entity.EnrichmentNeedsReview,
			Confidence: 0,
			Notes:      "document analysis failed: " + msg,
			Result: &entity.EnrichmentResult{
				Recommendation: entity.RecommendationNeedsReview,
				Issues:         []string{},
				DerivedIssues:  []string{},
				Error:          msg,
			},
		}
	}

	check := rule.ReceiptCheck{
		FacilityName:     claim.FacilityName,
		ReceiptNumber:    claim.ReceiptNumber,
		ReceiptDate:      claim.ReceiptDate,
		ReceiptWeightLbs: claim.ReceiptWeightLbs,
	}
	if job != nil {
		check.JobCompletedAt = job.CompletedAt
	}
	derived := s.validator.DeriveIssues(check, analysis.Extracted)

	issues := analysis.Issues
	if issues == nil {
		issues = []string{}
	}

	return &entity.EnrichmentRecord{
		Status:     rule.EnrichmentStatus(analysis.Recommendation, analysis.ImageReadable, analysis.TamperingSuspected),
		Confidence: rule.ClampConfidence(analysis.Confidence),
		Notes:      enrichmentNotes(analysis, derived),
		Result: &entity.EnrichmentResult{
			Recommendation:     strings.ToUpper(strings.TrimSpace(analysis.Recommendation)),
			Extracted:          analysis.Extracted,
			ImageReadable:      analysis.ImageReadable,
			TamperingSuspected: analysis.TamperingSuspected,
			Issues:             issues,
			DerivedIssues:      derived,
			Recommendations:    analysis.Recommendations,
		},
	}
}

func enrichmentNotes(analysis *port.ReceiptAnalysis, derived []string) string {
	var parts []string
	if r := strings.TrimSpace(analysis.Reasoning); r != "" {
		parts = append(parts, r)
	}
	if !analysis.ImageReadable {
		parts = append(parts, "receipt image not readable")
	}
	if analysis.TamperingSuspected {
		parts = append(parts, "possible tampering")
	}
	parts = append(parts, derived...)
	return strings.Join(parts, "; ")
}

func enrichmentReasons(record *entity.EnrichmentRecord) []string {
	reasons := []string{}
	if record.Result == nil {
		return reasons
	}
	if record.Result.Error != "" {
		reasons = append(reasons, "document analysis failed: "+record.Result.Error)
	}
	reasons = append(reasons, record.Result.Issues...)
	reasons = append(reasons, record.Result.DerivedIssues...)
	return reasons
}
