package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/sqlite"
	"github.com/haulwise/rebate-claims/pkg/database"
	"go.uber.org/zap"
)

const claimColumns = `
	id, job_id, pro_id,
	facility_name, facility_address, receipt_number, receipt_date, receipt_weight_lbs,
	fee_charged, receipt_image_ref,
	matched_facility_id, facility_approved, estimated_weight_lbs, variance_percent,
	within_variance, within_48_hours, validation_flags, job_total_price, rebate_amount,
	status, submitted_at, reviewed_at, reviewer_id, denial_reason,
	enrichment_status, enrichment_confidence, enrichment_notes, enrichment_result,
	enrichment_audit_note, enrichment_attempts, enriched_at,
	created_at, updated_at`

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB, logger *zap.Logger) *ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a claim. The job_id UNIQUE constraint and the receipt-number
// index are the authority on duplicates; violations come back as ErrDuplicateClaim.
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.RebateClaim) error {
	flags, err := json.Marshal(nonNilStrings(claim.ValidationFlags))
	if err != nil {
		return fmt.Errorf("failed to encode validation flags: %w", err)
	}
	result, err := encodeResult(claim.EnrichmentResult)
	if err != nil {
		return err
	}

	var receiptKey sql.NullString
	if key := entity.ReceiptNumberKey(claim.ReceiptNumber); key != "" {
		receiptKey = sql.NullString{String: key, Valid: true}
	}

	query := `
		INSERT INTO rebate_claims (
			id, job_id, pro_id,
			facility_name, facility_address, receipt_number, receipt_number_key,
			receipt_date, receipt_weight_lbs, fee_charged, receipt_image_ref,
			matched_facility_id, facility_approved, estimated_weight_lbs, variance_percent,
			within_variance, within_48_hours, validation_flags, job_total_price, rebate_amount,
			status, submitted_at,
			enrichment_status, enrichment_confidence, enrichment_notes, enrichment_result,
			enrichment_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		claim.ID, claim.JobID, claim.ProID,
		claim.FacilityName, claim.FacilityAddress, claim.ReceiptNumber, receiptKey,
		claim.ReceiptDate.UTC(), claim.ReceiptWeightLbs, claim.FeeCharged, claim.ReceiptImageRef,
		nullInt64(claim.MatchedFacilityID), claim.FacilityApproved, claim.EstimatedWeightLbs, claim.VariancePercent,
		claim.WithinVariance, claim.Within48Hours, string(flags), claim.JobTotalPrice, claim.RebateAmount,
		claim.Status, claim.SubmittedAt.UTC(),
		claim.EnrichmentStatus, nullFloat64(claim.EnrichmentConfidence), claim.EnrichmentNotes, result,
		claim.EnrichmentAttempts, claim.CreatedAt.UTC(), claim.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", entity.ErrDuplicateClaim, duplicateReason(err))
		}
		r.logger.Error("Failed to create claim", zap.String("job_id", claim.JobID), zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}

	return nil
}

// GetByID retrieves a claim by id
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*entity.RebateClaim, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByJobID retrieves the claim filed against a job
func (r *ClaimRepository) GetByJobID(ctx context.Context, jobID string) (*entity.RebateClaim, error) {
	return r.getOne(ctx, "job_id = ?", jobID)
}

// GetByReceiptNumber retrieves the claim that used a receipt number
func (r *ClaimRepository) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*entity.RebateClaim, error) {
	key := entity.ReceiptNumberKey(receiptNumber)
	if key == "" {
		return nil, nil
	}
	return r.getOne(ctx, "receipt_number_key = ?", key)
}

func (r *ClaimRepository) getOne(ctx context.Context, where string, arg interface{}) (*entity.RebateClaim, error) {
	query := `SELECT ` + claimColumns + ` FROM rebate_claims WHERE ` + where

	claim, err := scanClaim(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.String("where", where), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// ListByStatus returns claims in any of statuses, newest submission first.
// A non-positive limit returns every match.
func (r *ClaimRepository) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.RebateClaim, error) {
	if len(statuses) == 0 {
		return []*entity.RebateClaim{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `SELECT ` + claimColumns + ` FROM rebate_claims
		WHERE status IN (` + placeholders + `)
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?`

	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, limit)

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list claims", zap.Strings("statuses", statuses), zap.Error(err))
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []*entity.RebateClaim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// Resolve applies a reviewer decision only while the claim is still open, so
// of two concurrent decisions exactly one succeeds.
func (r *ClaimRepository) Resolve(ctx context.Context, id string, res *port.Resolution) (bool, error) {
	query := `
		UPDATE rebate_claims
		SET status = ?, reviewer_id = ?, denial_reason = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`

	at := res.ReviewedAt.UTC()
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		res.Status, res.ReviewerID, res.DenialReason, at, at,
		id, entity.StatusPending, entity.StatusFlagged,
	)
	if err != nil {
		r.logger.Error("Failed to resolve claim", zap.String("claim_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to resolve claim: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// SaveEnrichment writes the enrichment segment. The disposition columns are not
// touched; when the claim is already resolved the audit note records that in the
// same statement.
func (r *ClaimRepository) SaveEnrichment(ctx context.Context, id string, rec *entity.EnrichmentRecord) error {
	result, err := encodeResult(rec.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE rebate_claims
		SET enrichment_status = ?,
			enrichment_confidence = ?,
			enrichment_notes = ?,
			enrichment_result = ?,
			enrichment_attempts = ?,
			enriched_at = ?,
			enrichment_audit_note = CASE
				WHEN status IN ('approved', 'denied') THEN 'enrichment completed after claim was ' || status
				ELSE NULL
			END,
			updated_at = ?
		WHERE id = ?
	`

	enrichedAt := rec.EnrichedAt.UTC()
	res, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rec.Status, rec.Confidence, rec.Notes, result, rec.Attempts, enrichedAt, enrichedAt, id,
	)
	if err != nil {
		r.logger.Error("Failed to save enrichment", zap.String("claim_id", id), zap.Error(err))
		return fmt.Errorf("failed to save enrichment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", entity.ErrClaimNotFound, id)
	}
	return nil
}

// ListStaleEnrichment returns ids of claims submitted before cutoff whose enrichment never finished
func (r *ClaimRepository) ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM rebate_claims
		WHERE enrichment_status = ? AND submitted_at < ?
		ORDER BY submitted_at ASC
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entity.EnrichmentPending, cutoff.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list stale enrichment", zap.Error(err))
		return nil, fmt.Errorf("failed to list stale enrichment: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*entity.RebateClaim, error) {
	var (
		c                entity.RebateClaim
		matchedFacility  sql.NullInt64
		flags            string
		reviewedAt       sql.NullTime
		confidence       sql.NullFloat64
		enrichmentResult sql.NullString
		auditNote        sql.NullString
		enrichedAt       sql.NullTime
	)

	err := row.Scan(
		&c.ID, &c.JobID, &c.ProID,
		&c.FacilityName, &c.FacilityAddress, &c.ReceiptNumber, &c.ReceiptDate, &c.ReceiptWeightLbs,
		&c.FeeCharged, &c.ReceiptImageRef,
		&matchedFacility, &c.FacilityApproved, &c.EstimatedWeightLbs, &c.VariancePercent,
		&c.WithinVariance, &c.Within48Hours, &flags, &c.JobTotalPrice, &c.RebateAmount,
		&c.Status, &c.SubmittedAt, &reviewedAt, &c.ReviewerID, &c.DenialReason,
		&c.EnrichmentStatus, &confidence, &c.EnrichmentNotes, &enrichmentResult,
		&auditNote, &c.EnrichmentAttempts, &enrichedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if matchedFacility.Valid {
		id := matchedFacility.Int64
		c.MatchedFacilityID = &id
	}
	if err := json.Unmarshal([]byte(flags), &c.ValidationFlags); err != nil {
		return nil, fmt.Errorf("failed to decode validation flags: %w", err)
	}
	if reviewedAt.Valid {
		c.ReviewedAt = &reviewedAt.Time
	}
	if confidence.Valid {
		v := confidence.Float64
		c.EnrichmentConfidence = &v
	}
	if enrichmentResult.Valid && enrichmentResult.String != "" {
		var res entity.EnrichmentResult
		if err := json.Unmarshal([]byte(enrichmentResult.String), &res); err != nil {
			return nil, fmt.Errorf("failed to decode enrichment result: %w", err)
		}
		c.EnrichmentResult = &res
	}
	c.EnrichmentAuditNote = auditNote.String
	if enrichedAt.Valid {
		c.EnrichedAt = &enrichedAt.Time
	}

	return &c, nil
}

func encodeResult(res *entity.EnrichmentResult) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode enrichment result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func duplicateReason(err error) string {
	if strings.Contains(err.Error(), "receipt_number_key") {
		return "receipt number already used by another claim"
	}
	return "job already has a rebate claim"
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ port.ClaimRepository = (*ClaimRepository)(nil)
