package service

import (
	"context"
	"errors"
	"testing"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewAlert_FlaggedSubmission(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewReviewAlertService(newMockClaimRepo(), notifier, nil)

	evt := event.New(event.TypeClaimSubmitted, "c1", map[string]interface{}{
		"job_id":        "job-1",
		"status":        entity.StatusFlagged,
		"rebate_amount": "15.00",
		"flags":         []string{"weight variance 40.0% exceeds 20% tolerance"},
	})
	require.NoError(t, svc.OnClaimSubmitted(context.Background(), evt))

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, "c1", alert.ClaimID)
	assert.Equal(t, "job-1", alert.JobID)
	assert.True(t, alert.RebateAmount.Equal(decimal.RequireFromString("15")))
	assert.Equal(t, []string{"weight variance 40.0% exceeds 20% tolerance"}, alert.Reasons)
}

func TestReviewAlert_PendingSubmissionIsQuiet(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewReviewAlertService(newMockClaimRepo(), notifier, nil)

	evt := event.New(event.TypeClaimSubmitted, "c1", map[string]interface{}{"status": entity.StatusPending})
	require.NoError(t, svc.OnClaimSubmitted(context.Background(), evt))
	assert.Empty(t, notifier.alerts)
}

func TestReviewAlert_Enriched(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		enrichment string
		wantAlert  bool
	}{
		{"passed", entity.StatusPending, entity.EnrichmentPassed, false},
		{"failed and open", entity.StatusPending, entity.EnrichmentFailed, true},
		{"needs review and flagged", entity.StatusFlagged, entity.EnrichmentNeedsReview, true},
		{"failed but already resolved", entity.StatusApproved, entity.EnrichmentFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := newMockClaimRepo(&entity.RebateClaim{ID: "c1", JobID: "job-1", Status: tt.status, EnrichmentStatus: tt.enrichment})
			notifier := &mockNotifier{}
			svc := NewReviewAlertService(claims, notifier, nil)

			evt := event.New(event.TypeClaimEnriched, "c1", map[string]interface{}{
				"enrichment_status": tt.enrichment,
				"issues":            []string{"receipt shows 300 lbs but claim states 520 lbs"},
			})
			require.NoError(t, svc.OnClaimEnriched(context.Background(), evt))

			if !tt.wantAlert {
				assert.Empty(t, notifier.alerts)
				return
			}
			require.Len(t, notifier.alerts, 1)
			assert.Equal(t, tt.enrichment, notifier.alerts[0].EnrichmentStatus)
			assert.Equal(t, []string{"receipt shows 300 lbs but claim states 520 lbs"}, notifier.alerts[0].Reasons)
		})
	}
}

func TestReviewAlert_NotifierError(t *testing.T) {
	notifier := &mockNotifier{notifyFunc: func(ctx context.Context, alert *port.ReviewAlert) error {
		return errors.New("lark unavailable")
	}}
	svc := NewReviewAlertService(newMockClaimRepo(), notifier, nil)

	evt := event.New(event.TypeClaimSubmitted, "c1", map[string]interface{}{"status": entity.StatusFlagged})
	assert.Error(t, svc.OnClaimSubmitted(context.Background(), evt))
}

func TestReviewAlert_RegisterWiresDispatcher(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewReviewAlertService(newMockClaimRepo(), notifier, nil)

	d := dispatcher.NewDispatcher(nil)
	defer d.Close()
	svc.Register(d)

	evt := event.New(event.TypeClaimSubmitted, "c1", map[string]interface{}{"status": entity.StatusFlagged})
	require.NoError(t, d.Dispatch(context.Background(), evt))
	assert.Len(t, notifier.alerts, 1)
}
