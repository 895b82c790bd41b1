package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/event"
)

// mockClaimRepo keeps claims in memory; func fields override individual calls.
type mockClaimRepo struct {
	mu     sync.Mutex
	claims map[string]*entity.RebateClaim

	createFunc         func(ctx context.Context, claim *entity.RebateClaim) error
	resolveFunc        func(ctx context.Context, id string, r *port.Resolution) (bool, error)
	saveEnrichmentFunc func(ctx context.Context, id string, record *entity.EnrichmentRecord) error

	saved []*entity.EnrichmentRecord
}

func newMockClaimRepo(claims ...*entity.RebateClaim) *mockClaimRepo {
	m := &mockClaimRepo{claims: make(map[string]*entity.RebateClaim)}
	for _, c := range claims {
		m.claims[c.ID] = c
	}
	return m
}

func (m *mockClaimRepo) Create(ctx context.Context, claim *entity.RebateClaim) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, claim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *claim
	m.claims[claim.ID] = &cp
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id string) (*entity.RebateClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaimRepo) GetByJobID(ctx context.Context, jobID string) (*entity.RebateClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.claims {
		if c.JobID == jobID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockClaimRepo) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*entity.RebateClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entity.ReceiptNumberKey(receiptNumber)
	for _, c := range m.claims {
		if key != "" && entity.ReceiptNumberKey(c.ReceiptNumber) == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockClaimRepo) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.RebateClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool)
	for _, s := range statuses {
		want[s] = true
	}
	var out []*entity.RebateClaim
	for _, c := range m.claims {
		if want[c.Status] {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *mockClaimRepo) Resolve(ctx context.Context, id string, r *port.Resolution) (bool, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, id, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok || !c.InReviewQueue() {
		return false, nil
	}
	at := r.ReviewedAt
	c.Status = r.Status
	c.ReviewerID = r.ReviewerID
	c.DenialReason = r.DenialReason
	c.ReviewedAt = &at
	return true, nil
}

func (m *mockClaimRepo) SaveEnrichment(ctx context.Context, id string, record *entity.EnrichmentRecord) error {
	if m.saveEnrichmentFunc != nil {
		return m.saveEnrichmentFunc(ctx, id, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return entity.ErrClaimNotFound
	}
	conf := record.Confidence
	at := record.EnrichedAt
	c.EnrichmentStatus = record.Status
	c.EnrichmentConfidence = &conf
	c.EnrichmentNotes = record.Notes
	c.EnrichmentResult = record.Result
	c.EnrichmentAttempts = record.Attempts
	c.EnrichedAt = &at
	m.saved = append(m.saved, record)
	return nil
}

func (m *mockClaimRepo) ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return nil, nil
}

type mockJobRepo struct {
	jobs map[string]*entity.Job
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	return m.jobs[id], nil
}

type mockFacilityRegistry struct {
	facilities []*entity.ApprovedFacility
}

func (m *mockFacilityRegistry) ListAll(ctx context.Context) ([]*entity.ApprovedFacility, error) {
	return m.facilities, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockQueue struct {
	mu     sync.Mutex
	ids    []string
	reject bool
}

func (m *mockQueue) Enqueue(claimID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.ids = append(m.ids, claimID)
	return true
}

type mockReceiptStore struct {
	loadFunc func(ctx context.Context, ref string) (*port.ReceiptImage, error)
}

func (m *mockReceiptStore) Load(ctx context.Context, ref string) (*port.ReceiptImage, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx, ref)
	}
	return &port.ReceiptImage{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg"}, nil
}

type mockAnalyzer struct {
	mu          sync.Mutex
	calls       int
	analyzeFunc func(ctx context.Context, req *port.ReceiptAnalysisRequest) (*port.ReceiptAnalysis, error)
}

func (m *mockAnalyzer) AnalyzeReceipt(ctx context.Context, req *port.ReceiptAnalysisRequest) (*port.ReceiptAnalysis, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.analyzeFunc(ctx, req)
}

func (m *mockAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockNotifier struct {
	alerts     []*port.ReviewAlert
	notifyFunc func(ctx context.Context, alert *port.ReviewAlert) error
}

func (m *mockNotifier) NotifyReview(ctx context.Context, alert *port.ReviewAlert) error {
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, alert)
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

// recordingDispatcher captures events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

var _ dispatcher.Dispatcher = (*recordingDispatcher)(nil)

func (d *recordingDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = d.Dispatch(ctx, evt)
}

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) Types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}
