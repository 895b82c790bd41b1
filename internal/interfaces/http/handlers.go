package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/application/service"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/workflow"
	"github.com/haulwise/rebate-claims/internal/report"
)

const (
	version        = "1.0.0"
	reviewerHeader = "X-Reviewer-ID"
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Pinger reports database reachability for the health check
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	claimService service.ClaimService
	exporter     *report.ReviewQueueExporter
	db           Pinger
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(claimService service.ClaimService, exporter *report.ReviewQueueExporter, db Pinger, logger *zap.Logger) *Handlers {
	return &Handlers{
		claimService: claimService,
		exporter:     exporter,
		db:           db,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Database  string `json:"database"`
}

// SubmitClaimRequest is the body of POST /api/v1/claims
type SubmitClaimRequest struct {
	JobID            string           `json:"job_id"`
	ProID            string           `json:"pro_id"`
	FacilityName     string           `json:"facility_name"`
	FacilityAddress  string           `json:"facility_address"`
	ReceiptNumber    string           `json:"receipt_number"`
	ReceiptDate      time.Time        `json:"receipt_date"`
	ReceiptWeightLbs float64          `json:"receipt_weight_lbs"`
	FeeCharged       *decimal.Decimal `json:"fee_charged"`
	ReceiptImageRef  string           `json:"receipt_image_ref"`
}

// ReviewRequest is the body of the approve and deny endpoints
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

// ReviewQueueResponse lists claims awaiting a decision
type ReviewQueueResponse struct {
	Count  int                   `json:"count"`
	Claims []*entity.RebateClaim `json:"claims"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
		Database:  "ok",
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error("Database ping failed", zap.Error(err))
			response.Status = "unhealthy"
			response.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: "database unreachable"})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// SubmitClaim handles POST /api/v1/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Info("Invalid claim body", zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return
	}

	outcome := h.claimService.Intake(c.Request.Context(), &service.SubmitClaimInput{
		JobID:            req.JobID,
		ProID:            req.ProID,
		FacilityName:     req.FacilityName,
		FacilityAddress:  req.FacilityAddress,
		ReceiptNumber:    req.ReceiptNumber,
		ReceiptDate:      req.ReceiptDate,
		ReceiptWeightLbs: req.ReceiptWeightLbs,
		FeeCharged:       req.FeeCharged,
		ReceiptImageRef:  req.ReceiptImageRef,
	})
	if outcome.IsRejected() {
		h.writeError(c, outcome.Reason())
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    outcome.Claim(),
	})
}

// GetClaim handles GET /api/v1/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	claim, err := h.claimService.GetClaim(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// ListReviewQueue handles GET /api/v1/admin/review-queue
func (h *Handlers) ListReviewQueue(c *gin.Context) {
	claims, err := h.claimService.ListReviewQueue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if claims == nil {
		claims = []*entity.RebateClaim{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ReviewQueueResponse{Count: len(claims), Claims: claims},
	})
}

// ExportReviewQueue handles GET /api/v1/admin/review-queue/export
func (h *Handlers) ExportReviewQueue(c *gin.Context) {
	claims, err := h.claimService.ListReviewQueue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, claims); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("review-queue-%s.xlsx", time.Now().UTC().Format("20060102-1504"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxMIME, buf.Bytes())
}

// ApproveClaim handles POST /api/v1/admin/claims/:id/approve
func (h *Handlers) ApproveClaim(c *gin.Context) {
	req, ok := h.bindReview(c)
	if !ok {
		return
	}

	claim, err := h.claimService.ApproveClaim(c.Request.Context(), c.Param("id"), req.ReviewerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// DenyClaim handles POST /api/v1/admin/claims/:id/deny
func (h *Handlers) DenyClaim(c *gin.Context) {
	req, ok := h.bindReview(c)
	if !ok {
		return
	}

	claim, err := h.claimService.DenyClaim(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// bindReview reads the optional review body; the reviewer may also come from a header.
func (h *Handlers) bindReview(c *gin.Context) (*ReviewRequest, bool) {
	var req ReviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "invalid request body: " + err.Error(),
			})
			return nil, false
		}
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		req.ReviewerID = c.GetHeader(reviewerHeader)
	}
	return &req, true
}

// writeError maps service errors onto status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidationFailed), errors.Is(err, workflow.ErrReviewerRequired):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrDuplicateClaim), errors.Is(err, workflow.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidJobState),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrInvalidState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
