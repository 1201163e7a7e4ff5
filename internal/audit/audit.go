// Package audit emits the tenant audit trail. Every emission is
// best-effort: failures are logged and counted, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/metrics"
)

// Logger writes audit events to the repository and publishes them on the
// event bus. Both sinks are optional.
type Logger struct {
	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
}

// NewLogger creates an audit logger. repo and bus may be nil.
func NewLogger(repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		repo:   repo,
		bus:    bus,
		logger: logger.With("component", "audit"),
	}
}

// BatchScored records the outcome of one scoring request.
func (l *Logger) BatchScored(ctx context.Context, result *domain.BatchResult) {
	anomalyRate := 0.0
	if result.Summary.Total > 0 {
		anomalyRate = float64(result.Summary.Anomalies) / float64(result.Summary.Total)
	}
	l.emit(ctx, &domain.AuditEvent{
		TenantID: result.TenantID,
		Type:     domain.AuditBatchScored,
		Severity: domain.SeverityForScore(result.Summary.AvgScore),
		Details: map[string]any{
			"batch_id":           result.BatchID,
			"model_type":         string(result.ModelKind),
			"total_predictions":  result.Summary.Total,
			"anomalies_detected": result.Summary.Anomalies,
			"suspicious":         result.Summary.Suspicious,
			"anomaly_rate":       anomalyRate,
			"avg_score":          result.Summary.AvgScore,
			"model_trained":      result.ModelTrained,
		},
	})
}

// ModelTrained records a completed training run.
func (l *Logger) ModelTrained(ctx context.Context, info *domain.ModelInfo) {
	l.emit(ctx, &domain.AuditEvent{
		TenantID: info.TenantID,
		Type:     domain.AuditModelTrained,
		Severity: domain.SeverityLow,
		Details: map[string]any{
			"kind":          string(info.Kind),
			"samples":       info.Samples,
			"contamination": info.Contamination,
		},
	})
}

// ModelPrediction records one model prediction pass over a batch.
func (l *Logger) ModelPrediction(ctx context.Context, tenantID string, kind domain.ModelKind, total, anomalies int) {
	rate := 0.0
	if total > 0 {
		rate = float64(anomalies) / float64(total)
	}
	l.emit(ctx, &domain.AuditEvent{
		TenantID: tenantID,
		Type:     domain.AuditModelPrediction,
		Severity: domain.SeverityLow,
		Details: map[string]any{
			"kind":         string(kind),
			"predictions":  total,
			"anomalies":    anomalies,
			"anomaly_rate": rate,
		},
	})
}

// PolicyChanged records a risk policy update.
func (l *Logger) PolicyChanged(ctx context.Context, policy *domain.RiskPolicy) {
	l.emit(ctx, &domain.AuditEvent{
		TenantID: policy.TenantID,
		Type:     domain.AuditPolicyChanged,
		Severity: domain.SeverityMedium,
		Details: map[string]any{
			"sensitivity":     string(policy.Sensitivity),
			"rules_enabled":   policy.RulesEnabled,
			"model_enabled":   policy.ModelEnabled,
			"model_kind":      string(policy.Kind()),
			"stable_baseline": policy.StableBaseline,
		},
	})
}

// ModelPersisted records an explicit persist call.
func (l *Logger) ModelPersisted(ctx context.Context, tenantID string, count int) {
	l.emit(ctx, &domain.AuditEvent{
		TenantID: tenantID,
		Type:     domain.AuditModelPersisted,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"models": count},
	})
}

// ModelRestored records an explicit restore call.
func (l *Logger) ModelRestored(ctx context.Context, tenantID string, count int) {
	l.emit(ctx, &domain.AuditEvent{
		TenantID: tenantID,
		Type:     domain.AuditModelRestored,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"models": count},
	})
}

func (l *Logger) emit(ctx context.Context, event *domain.AuditEvent) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	result := "ok"
	if l.repo != nil {
		if err := l.repo.SaveAuditEvent(ctx, event.TenantID, event); err != nil {
			result = "error"
			l.logger.Warn("failed to persist audit event",
				"tenant_id", event.TenantID, "type", event.Type, "error", err)
		}
	}
	if l.bus != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			err = l.bus.Publish(ctx, event.TenantID, domain.TopicAudit, payload)
		}
		if err != nil {
			result = "error"
			l.logger.Warn("failed to publish audit event",
				"tenant_id", event.TenantID, "type", event.Type, "error", err)
		}
	}
	metrics.AuditEventsTotal.WithLabelValues(string(event.Type), result).Inc()
}
