package rule

import (
	"testing"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebateCalculator_Amount(t *testing.T) {
	policy := DefaultPolicy()
	calc := NewRebateCalculator(policy.RebateRate, policy.RebateCap)

	tests := []struct {
		price string
		want  string
	}{
		{"0", "0"},
		{"100", "10"},
		{"150", "15"},
		{"249.99", "25"},
		{"250", "25"},
		{"300", "25"},
		{"10000", "25"},
		{"123.45", "12.35"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			got := calc.Amount(decimal.RequireFromString(tt.price))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "price %s: got %s want %s", tt.price, got, tt.want)
		})
	}
}

func TestRebateCalculator_RequiresCompletedJob(t *testing.T) {
	policy := DefaultPolicy()
	calc := NewRebateCalculator(policy.RebateRate, policy.RebateCap)
	done := time.Now()

	tests := []struct {
		name string
		job  *entity.Job
	}{
		{"nil job", nil},
		{"scheduled", &entity.Job{ID: "j", Status: entity.JobStatusScheduled, TotalPrice: decimal.NewFromInt(100)}},
		{"cancelled", &entity.Job{ID: "j", Status: entity.JobStatusCancelled, CompletedAt: &done, TotalPrice: decimal.NewFromInt(100)}},
		{"completed without timestamp", &entity.Job{ID: "j", Status: entity.JobStatusCompleted, TotalPrice: decimal.NewFromInt(100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Calculate(tt.job)
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrInvalidJobState)
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.RebateRate = decimal.NewFromFloat(1.5)
	assert.ErrorContains(t, p.Validate(), "rebate rate")

	p = DefaultPolicy()
	p.RebateCap = decimal.Zero
	assert.ErrorContains(t, p.Validate(), "rebate cap")

	p = DefaultPolicy()
	p.VarianceTolerancePercent = decimal.NewFromInt(0)
	assert.ErrorContains(t, p.Validate(), "variance tolerance")

	p = DefaultPolicy()
	p.SubmissionWindow = 0
	assert.ErrorContains(t, p.Validate(), "submission window")
}
