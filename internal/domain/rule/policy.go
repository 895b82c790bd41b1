// Package rule holds the deterministic business rules applied to a rebate claim at intake:
// weight variance, submission window, facility matching and the rebate amount.
package rule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the configured constants the rules are evaluated against.
type Policy struct {
	RebateRate               decimal.Decimal
	RebateCap                decimal.Decimal
	VarianceTolerancePercent decimal.Decimal
	SubmissionWindow         time.Duration
	FutureSkew               time.Duration
}

// DefaultPolicy returns the production rebate policy: 10% of job price capped at $25,
// 20% weight tolerance and a 48 hour submission window.
func DefaultPolicy() Policy {
	return Policy{
		RebateRate:               decimal.NewFromFloat(0.10),
		RebateCap:                decimal.NewFromInt(25),
		VarianceTolerancePercent: decimal.NewFromInt(20),
		SubmissionWindow:         48 * time.Hour,
		FutureSkew:               15 * time.Minute,
	}
}

// Validate checks the policy values are usable.
func (p Policy) Validate() error {
	if !p.RebateRate.IsPositive() || p.RebateRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rebate rate must be in (0, 1], got %s", p.RebateRate)
	}
	if !p.RebateCap.IsPositive() {
		return fmt.Errorf("rebate cap must be positive, got %s", p.RebateCap)
	}
	if !p.VarianceTolerancePercent.IsPositive() || p.VarianceTolerancePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("variance tolerance must be in (0, 100], got %s", p.VarianceTolerancePercent)
	}
	if p.SubmissionWindow <= 0 {
		return fmt.Errorf("submission window must be positive, got %s", p.SubmissionWindow)
	}
	if p.FutureSkew < 0 {
		return fmt.Errorf("future skew must not be negative, got %s", p.FutureSkew)
	}
	return nil
}
