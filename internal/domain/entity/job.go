package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Job is the hauling job a rebate claim is filed against. Owned by the job system; read-only here.
type Job struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	EstimatedWeightLbs float64         `json:"estimated_weight_lbs"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	TotalPrice         decimal.Decimal `json:"total_price"`
}

// IsCompleted reports whether a rebate may be filed against the job.
func (j *Job) IsCompleted() bool {
	return j.Status == JobStatusCompleted && j.CompletedAt != nil
}

// ApprovedFacility is an entry in the disposal facility registry. Read-only here.
type ApprovedFacility struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	FacilityType string `json:"facility_type"`
	Approved     bool   `json:"approved"`
}
