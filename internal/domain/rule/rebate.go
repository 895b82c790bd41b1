package rule

import (
	"fmt"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// RebateCalculator derives the reimbursable amount from a job's price.
type RebateCalculator struct {
	rate decimal.Decimal
	cap  decimal.Decimal
}

// NewRebateCalculator creates a calculator for min(price × rate, cap).
func NewRebateCalculator(rate, cap decimal.Decimal) *RebateCalculator {
	return &RebateCalculator{rate: rate, cap: cap}
}

// Calculate returns the rebate for a job. Rebates may only be filed against completed jobs.
func (c *RebateCalculator) Calculate(job *entity.Job) (decimal.Decimal, error) {
	if job == nil {
		return decimal.Zero, fmt.Errorf("%w: job is missing", entity.ErrInvalidJobState)
	}
	if !job.IsCompleted() {
		return decimal.Zero, fmt.Errorf("%w: job %s is %q, rebates require a completed job",
			entity.ErrInvalidJobState, job.ID, job.Status)
	}
	return c.Amount(job.TotalPrice), nil
}

// Amount applies the rate and cap to a price, rounded to cents.
func (c *RebateCalculator) Amount(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero.Round(2)
	}
	return decimal.Min(price.Mul(c.rate), c.cap).Round(2)
}
