// Package worker provides async batch scoring from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/scoring"
)

// Worker consumes batch-received messages and runs them through the
// scoring pipeline. Results are persisted and published by the scorer.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	scorer *scoring.Scorer
	logger *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription).
	TenantIDs []string
}

// NewWorker creates a new async worker. Repository and cache are optional;
// without them every batch is scored under the default policy.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, scorer *scoring.Scorer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		scorer: scorer,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// BatchMessage is the payload for async batch scoring. When Policy is set it
// overrides the tenant's stored policy for this batch only.
type BatchMessage struct {
	BatchID  string               `json:"batchId,omitempty"`
	TenantID string               `json:"tenantId"`
	Records  []*domain.Receivable `json:"records"`
	Policy   *domain.RiskPolicy   `json:"policy,omitempty"`
}

// processBatch scores a batch through the pipeline.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		w.logger.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if batchMsg.TenantID != "" {
		tenantID = batchMsg.TenantID
	}

	policy := batchMsg.Policy
	if policy == nil {
		policy = w.resolvePolicy(ctx, tenantID)
	}

	result, err := w.scorer.ScoreBatch(ctx, tenantID, batchMsg.Records, policy)
	if err != nil {
		w.logger.Error("batch scoring failed",
			"tenant_id", tenantID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.logger.Info("batch processed",
		"batch_id", result.BatchID,
		"tenant_id", tenantID,
		"total", result.Summary.Total,
		"suspicious", result.Summary.Suspicious,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// resolvePolicy loads the tenant's stored policy, cache first. Returns nil
// when none is configured so the scorer falls back to the default.
func (w *Worker) resolvePolicy(ctx context.Context, tenantID string) *domain.RiskPolicy {
	if w.cache != nil {
		if policy, err := w.cache.GetPolicy(ctx, tenantID); err == nil && policy != nil {
			return policy
		}
	}

	if w.repo == nil {
		return nil
	}

	policy, err := w.repo.GetPolicy(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("policy lookup failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
		return nil
	}

	if w.cache != nil {
		_ = w.cache.SetPolicy(ctx, tenantID, policy, 5*time.Minute)
	}

	return policy
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
