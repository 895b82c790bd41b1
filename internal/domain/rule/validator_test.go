package rule

import (
	"testing"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var completedAt = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func completedJob(price float64, estimatedLbs float64) *entity.Job {
	done := completedAt
	return &entity.Job{
		ID:                 "job-1",
		Status:             entity.JobStatusCompleted,
		EstimatedWeightLbs: estimatedLbs,
		CompletedAt:        &done,
		TotalPrice:         decimal.NewFromFloat(price),
	}
}

func approvedFacility() *entity.ApprovedFacility {
	return &entity.ApprovedFacility{ID: 7, Name: "Metro Transfer Station", FacilityType: entity.FacilityTypeTransfer, Approved: true}
}

func TestVariance_ToleranceBoundary(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	now := completedAt.Add(72 * time.Hour)

	tests := []struct {
		weight float64
		within bool
	}{
		{399, false},
		{400, true},
		{450, true},
		{500, true},
		{600, true},
		{601, false},
	}

	for _, tt := range tests {
		facts := ClaimedFacts{FacilityName: "Metro Transfer Station", ReceiptDate: completedAt.Add(time.Hour), ReceiptWeightLbs: tt.weight}
		a, err := v.Assess(facts, completedJob(100, 500), approvedFacility(), now)
		require.NoError(t, err)
		assert.Equal(t, tt.within, a.WithinVariance, "weight %.0f", tt.weight)
	}
}

func TestVariance_NoEstimate(t *testing.T) {
	_, ok := Variance(500, 0)
	assert.False(t, ok)

	v := NewValidator(DefaultPolicy())
	facts := ClaimedFacts{FacilityName: "Metro Transfer Station", ReceiptDate: completedAt, ReceiptWeightLbs: 300}
	a, err := v.Assess(facts, completedJob(100, 0), approvedFacility(), completedAt)
	require.NoError(t, err)
	assert.False(t, a.WithinVariance)
	assert.Equal(t, []string{"job has no estimated weight; variance not computed"}, a.Flags)
}

func TestSubmissionWindow_Boundary(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	now := completedAt.Add(96 * time.Hour)

	tests := []struct {
		name   string
		offset time.Duration
		within bool
	}{
		{"exactly 48h after", 48 * time.Hour, true},
		{"48h01m after", 48*time.Hour + time.Minute, false},
		{"slightly before completion", -2 * time.Hour, true},
		{"48h before completion", -48 * time.Hour, true},
		{"50h before completion", -50 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ClaimedFacts{FacilityName: "Metro Transfer Station", ReceiptDate: completedAt.Add(tt.offset), ReceiptWeightLbs: 500}
			a, err := v.Assess(facts, completedJob(100, 500), approvedFacility(), now)
			require.NoError(t, err)
			assert.Equal(t, tt.within, a.Within48Hours)
		})
	}
}

func TestDescribeGap(t *testing.T) {
	assert.Equal(t, "receipt dated 71h after job completion", DescribeGap(71*time.Hour))
	assert.Equal(t, "receipt dated 48h01m after job completion", DescribeGap(48*time.Hour+time.Minute))
	assert.Equal(t, "receipt dated 50h before job completion", DescribeGap(-50*time.Hour))
}

func TestAssess_FlagOrderAndText(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	facts := ClaimedFacts{
		FacilityName:     "Backyard Dump",
		ReceiptDate:      completedAt.Add(71 * time.Hour),
		ReceiptWeightLbs: 671,
	}

	a, err := v.Assess(facts, completedJob(100, 500), nil, completedAt.Add(80*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"weight variance 34.2% exceeds 20% tolerance",
		"receipt dated 71h after job completion",
		`facility "Backyard Dump" not in approved registry`,
	}, a.Flags)
	assert.Equal(t, 34.2, a.VariancePercent)
	assert.Nil(t, a.MatchedFacilityID)
	assert.False(t, a.FacilityApproved)
}

func TestAssess_FutureDatedReceipt(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	now := completedAt.Add(2 * time.Hour)
	facts := ClaimedFacts{FacilityName: "Metro Transfer Station", ReceiptDate: completedAt.Add(10 * time.Hour), ReceiptWeightLbs: 500}

	a, err := v.Assess(facts, completedJob(100, 500), approvedFacility(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"receipt dated in the future"}, a.Flags)
	assert.True(t, a.Within48Hours)
}

func TestAssess_UnapprovedRegistryEntry(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	facility := &entity.ApprovedFacility{ID: 9, Name: "County Landfill", Approved: false}
	facts := ClaimedFacts{FacilityName: "county landfill", ReceiptDate: completedAt, ReceiptWeightLbs: 500}

	a, err := v.Assess(facts, completedJob(100, 500), facility, completedAt)
	require.NoError(t, err)
	require.NotNil(t, a.MatchedFacilityID)
	assert.Equal(t, int64(9), *a.MatchedFacilityID)
	assert.False(t, a.FacilityApproved)
	assert.Equal(t, []string{`facility "county landfill" matched "County Landfill" but is not approved`}, a.Flags)
}

func TestAssess_Deterministic(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	facts := ClaimedFacts{FacilityName: "Nowhere", ReceiptDate: completedAt.Add(60 * time.Hour), ReceiptWeightLbs: 900}
	now := completedAt.Add(61 * time.Hour)

	first, err := v.Assess(facts, completedJob(180, 500), nil, now)
	require.NoError(t, err)
	second, err := v.Assess(facts, completedJob(180, 500), nil, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssess_InvalidJobState(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	job := completedJob(100, 500)
	job.Status = entity.JobStatusInProgress

	_, err := v.Assess(ClaimedFacts{FacilityName: "x", ReceiptDate: completedAt, ReceiptWeightLbs: 1}, job, nil, completedAt)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidJobState)
}

// GreenCycle scenario: two soft violations, inside the window.
func TestAssess_FlaggedScenario(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	facts := ClaimedFacts{FacilityName: "GreenCycle Recycling", ReceiptDate: completedAt.Add(30 * time.Hour), ReceiptWeightLbs: 650}

	a, err := v.Assess(facts, completedJob(150, 500), nil, completedAt.Add(31*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 30.0, a.VariancePercent)
	assert.False(t, a.WithinVariance)
	assert.True(t, a.Within48Hours)
	assert.False(t, a.FacilityApproved)
	assert.Len(t, a.Flags, 2)
	assert.True(t, a.Flagged())
	assert.True(t, decimal.NewFromInt(15).Equal(a.RebateAmount), "rebate = %s", a.RebateAmount)
}

func TestAssess_CleanScenario(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	facts := ClaimedFacts{FacilityName: "Metro Transfer Station", ReceiptDate: completedAt.Add(10 * time.Hour), ReceiptWeightLbs: 980}

	a, err := v.Assess(facts, completedJob(300, 1000), approvedFacility(), completedAt.Add(11*time.Hour))
	require.NoError(t, err)

	assert.Empty(t, a.Flags)
	assert.False(t, a.Flagged())
	assert.Equal(t, 2.0, a.VariancePercent)
	assert.True(t, decimal.NewFromInt(25).Equal(a.RebateAmount), "rebate = %s", a.RebateAmount)
}
