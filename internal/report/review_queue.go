// Package report renders claim listings for administrators.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const reviewQueueSheet = "Review Queue"

var reviewQueueColumns = []struct {
	title string
	width float64
}{
	{"Claim ID", 38},
	{"Job ID", 16},
	{"Pro ID", 14},
	{"Status", 10},
	{"Submitted At (UTC)", 20},
	{"Facility", 28},
	{"Approved Facility", 10},
	{"Receipt #", 14},
	{"Receipt Date (UTC)", 20},
	{"Receipt Weight (lbs)", 12},
	{"Estimated Weight (lbs)", 12},
	{"Variance %", 10},
	{"Within 48h", 10},
	{"Rebate", 10},
	{"Receipt Check", 14},
	{"Confidence", 10},
	{"Flags", 60},
}

// ReviewQueueExporter writes the review queue as an xlsx workbook
type ReviewQueueExporter struct {
	logger *zap.Logger
}

// NewReviewQueueExporter creates a new exporter
func NewReviewQueueExporter(logger *zap.Logger) *ReviewQueueExporter {
	return &ReviewQueueExporter{logger: logger}
}

// Write renders claims, in the order given, to w
func (e *ReviewQueueExporter) Write(w io.Writer, claims []*entity.RebateClaim) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reviewQueueSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range reviewQueueColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		e.setCell(f, fmt.Sprintf("%s1", name), col.title)
		if err := f.SetColWidth(reviewQueueSheet, name, name, col.width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(reviewQueueColumns))
	if err := f.SetCellStyle(reviewQueueSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, c := range claims {
		row := i + 2
		for col, value := range reviewQueueRow(c) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			e.setCell(f, cell, value)
		}
	}

	if err := f.SetPanes(reviewQueueSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Review queue exported", zap.Int("claims", len(claims)))
	return nil
}

func reviewQueueRow(c *entity.RebateClaim) []interface{} {
	var confidence interface{} = ""
	if c.EnrichmentConfidence != nil {
		confidence = *c.EnrichmentConfidence
	}
	rebate, _ := c.RebateAmount.Round(2).Float64()

	return []interface{}{
		c.ID,
		c.JobID,
		c.ProID,
		c.Status,
		formatTime(c.SubmittedAt),
		c.FacilityName,
		yesNo(c.FacilityApproved),
		c.ReceiptNumber,
		formatTime(c.ReceiptDate),
		c.ReceiptWeightLbs,
		c.EstimatedWeightLbs,
		c.VariancePercent,
		yesNo(c.Within48Hours),
		rebate,
		c.EnrichmentStatus,
		confidence,
		strings.Join(c.ValidationFlags, "; "),
	}
}

func (e *ReviewQueueExporter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(reviewQueueSheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
