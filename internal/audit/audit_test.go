package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// fakeRepo records audit events; the embedded interface covers the methods
// this package never calls.
type fakeRepo struct {
	domain.Repository
	events []*domain.AuditEvent
	err    error
}

func (f *fakeRepo) SaveAuditEvent(ctx context.Context, tenantID string, event *domain.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func TestBatchScoredEvent(t *testing.T) {
	repo := &fakeRepo{}
	logger := NewLogger(repo, nil, nil)

	logger.BatchScored(context.Background(), &domain.BatchResult{
		BatchID:      "batch-1",
		TenantID:     "tenant-1",
		ModelKind:    domain.KindGlobal,
		ModelTrained: true,
		Summary: domain.BatchSummary{
			Total:      10,
			Suspicious: 3,
			Anomalies:  2,
			AvgScore:   0.42,
		},
	})

	if len(repo.events) != 1 {
		t.Fatalf("got %d events, want 1", len(repo.events))
	}
	event := repo.events[0]
	if event.Type != domain.AuditBatchScored {
		t.Errorf("type = %s, want %s", event.Type, domain.AuditBatchScored)
	}
	if event.TenantID != "tenant-1" {
		t.Errorf("tenant = %s", event.TenantID)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Error("event id and timestamp must be set")
	}
	if event.Details["total_predictions"] != 10 {
		t.Errorf("total_predictions = %v", event.Details["total_predictions"])
	}
	if event.Details["anomaly_rate"] != 0.2 {
		t.Errorf("anomaly_rate = %v", event.Details["anomaly_rate"])
	}
	if event.Severity != domain.SeverityLow {
		t.Errorf("severity = %s", event.Severity)
	}
}

func TestEmitNeverFails(t *testing.T) {
	repo := &fakeRepo{err: errors.New("database gone")}
	logger := NewLogger(repo, nil, nil)

	// Must not panic or propagate the repository error.
	logger.ModelPersisted(context.Background(), "tenant-1", 2)
	logger.ModelRestored(context.Background(), "tenant-1", 1)
	logger.PolicyChanged(context.Background(), domain.DefaultRiskPolicy("tenant-1"))
}
