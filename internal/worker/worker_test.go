package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/anomaly"
	"github.com/TozatoRodrigo/detecta-ia/internal/bus"
	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
	"github.com/TozatoRodrigo/detecta-ia/internal/rules"
	"github.com/TozatoRodrigo/detecta-ia/internal/scoring"
)

func newTestScorer(t *testing.T, eventBus domain.EventBus) *scoring.Scorer {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	store, err := anomaly.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	manager := anomaly.NewManager(store, 30*time.Second, nil)

	return scoring.NewScorer(features.NewEngineer(nil, nil), engine, manager, scoring.Options{
		EventBus: eventBus,
	})
}

func testReceivable(id string, amount float64, fiscalLinked bool) *domain.Receivable {
	return &domain.Receivable{
		ID:           id,
		Drawer:       "ACME",
		Debtor:       "DEB-1",
		Amount:       amount,
		IssueDate:    "2024-01-15",
		MaturityDate: "2024-02-15",
		DocType:      "DM",
		FiscalLinked: fiscalLinked,
		Status:       "open",
	}
}

func rulesOnlyPolicy(tenantID string) *domain.RiskPolicy {
	policy := domain.DefaultRiskPolicy(tenantID)
	policy.ModelEnabled = false
	return policy
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	scorer := newTestScorer(t, eventBus)
	worker := NewWorker(eventBus, nil, nil, scorer, nil)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessBatch", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track scored results
		var scoredReceived atomic.Bool
		var scoredPayload atomic.Pointer[[]byte]

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicBatchScored, func(ctx context.Context, msg *domain.Message) error {
			payload := msg.Payload
			scoredPayload.Store(&payload)
			scoredReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		batchMsg := BatchMessage{
			TenantID: "tenant-test",
			Records: []*domain.Receivable{
				testReceivable("dup-001", 10500, true),
				testReceivable("dup-002", 9100, true),
			},
			Policy: rulesOnlyPolicy("tenant-test"),
		}

		payload, _ := json.Marshal(batchMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicBatchReceived, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		deadline := time.Now().Add(2 * time.Second)
		for !scoredReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}

		if !scoredReceived.Load() {
			t.Fatal("expected scored batch to be published")
		}

		var result domain.BatchResult
		if err := json.Unmarshal(*scoredPayload.Load(), &result); err != nil {
			t.Fatalf("failed to parse batch result: %v", err)
		}

		if result.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", result.TenantID)
		}
		if result.Summary.Total != 2 {
			t.Errorf("expected 2 scored records, got %d", result.Summary.Total)
		}
		if result.Summary.Suspicious != 0 {
			t.Errorf("expected no suspicious records, got %d", result.Summary.Suspicious)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Unlinked fiscal document plus an over-1M amount triggers rules
		batchMsg := BatchMessage{
			TenantID: "tenant-alert",
			Records: []*domain.Receivable{
				testReceivable("dup-bad", 2_000_000, false),
			},
			Policy: rulesOnlyPolicy("tenant-alert"),
		}

		payload, _ := json.Marshal(batchMsg)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicBatchReceived, payload)

		deadline := time.Now().Add(2 * time.Second)
		for !alertReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}

		if !alertReceived.Load() {
			t.Error("expected alert to be published for suspicious batch")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestBatchMessageParsing(t *testing.T) {
	msg := BatchMessage{
		BatchID:  "batch-123",
		TenantID: "tenant-001",
		Records: []*domain.Receivable{
			testReceivable("dup-001", 1234.56, true),
		},
		Policy: rulesOnlyPolicy("tenant-001"),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed BatchMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.BatchID != msg.BatchID {
		t.Errorf("expected BatchID '%s', got '%s'", msg.BatchID, parsed.BatchID)
	}
	if len(parsed.Records) != 1 || parsed.Records[0].Amount != 1234.56 {
		t.Errorf("records did not round-trip: %+v", parsed.Records)
	}
	if parsed.Policy == nil || parsed.Policy.ModelEnabled {
		t.Errorf("policy did not round-trip: %+v", parsed.Policy)
	}
}
