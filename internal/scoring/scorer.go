// Package scoring orchestrates the fraud pipeline: rules, features, model
// prediction, and score fusion.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TozatoRodrigo/detecta-ia/internal/anomaly"
	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
	"github.com/TozatoRodrigo/detecta-ia/internal/metrics"
	"github.com/TozatoRodrigo/detecta-ia/internal/rules"
)

// RuleHitScore is the fixed score anchor for rule hits. Rule firings are
// treated as high-confidence binary signals; the model can exceed it.
const RuleHitScore = 0.8

// minTrainSamples is the smallest batch that can fit an estimator.
const minTrainSamples = 2

// AuditSink receives fire-and-forget audit notifications.
type AuditSink interface {
	BatchScored(ctx context.Context, result *domain.BatchResult)
	ModelTrained(ctx context.Context, info *domain.ModelInfo)
	ModelPrediction(ctx context.Context, tenantID string, kind domain.ModelKind, total, anomalies int)
}

// Scorer runs the full pipeline for one tenant batch. Repository, event
// bus, and audit sink are optional; scoring works without any of them.
type Scorer struct {
	engineer *features.Engineer
	rules    *rules.Engine
	models   *anomaly.Manager
	repo     domain.Repository
	bus      domain.EventBus
	audit    AuditSink
	logger   *slog.Logger
}

// Options carries the optional scorer collaborators.
type Options struct {
	Repository domain.Repository
	EventBus   domain.EventBus
	Audit      AuditSink
	Logger     *slog.Logger
}

// NewScorer wires the pipeline.
func NewScorer(engineer *features.Engineer, ruleEngine *rules.Engine, models *anomaly.Manager, opts Options) *Scorer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		engineer: engineer,
		rules:    ruleEngine,
		models:   models,
		repo:     opts.Repository,
		bus:      opts.EventBus,
		audit:    opts.Audit,
		logger:   logger.With("component", "scoring"),
	}
}

// ScoreBatch scores a batch of receivables under the given policy and
// returns one verdict per record, order-preserved.
//
// If the policy enables the model and the tenant has no trained model of the
// configured kind yet, the batch itself is used as training data first; the
// result reports whether that happened. Model failures degrade to rules-only
// scoring and never fail the request.
func (s *Scorer) ScoreBatch(ctx context.Context, tenantID string, batch []*domain.Receivable, policy *domain.RiskPolicy) (*domain.BatchResult, error) {
	start := time.Now()

	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required: %w", domain.ErrInvalidInput)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch: %w", domain.ErrInvalidInput)
	}
	for i, rec := range batch {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if policy == nil {
		policy = domain.DefaultRiskPolicy(tenantID)
	}

	ruleVerdicts := make([]*domain.RuleVerdict, len(batch))
	if policy.RulesEnabled {
		ruleVerdicts = s.rules.EvaluateBatch(batch)
		for _, rv := range ruleVerdicts {
			for _, res := range rv.Results {
				if res.Fired {
					metrics.RuleHitsTotal.WithLabelValues(res.RuleID).Inc()
				}
			}
		}
	} else {
		for i, rec := range batch {
			ruleVerdicts[i] = &domain.RuleVerdict{ReceivableID: rec.ID, Reasons: []string{}}
		}
	}

	prediction := &anomaly.PredictResult{
		Flags:  make([]bool, len(batch)),
		Scores: make([]float64, len(batch)),
	}
	modelTrained := false
	kind := policy.Kind()
	if policy.ModelEnabled {
		prediction, modelTrained = s.predict(ctx, tenantID, batch, policy)
	}

	result := &domain.BatchResult{
		BatchID:      uuid.New().String(),
		TenantID:     tenantID,
		ModelTrained: modelTrained,
		ModelKind:    kind,
		Verdicts:     make([]*domain.Verdict, len(batch)),
	}

	var scoreSum float64
	for i := range batch {
		verdict := fuse(ruleVerdicts[i], prediction, i, policy)
		result.Verdicts[i] = verdict

		scoreSum += verdict.Score
		if verdict.Suspicious {
			result.Summary.Suspicious++
		}
		if prediction.Flags[i] {
			result.Summary.Anomalies++
		}
		metrics.ReceivablesScoredTotal.WithLabelValues(string(verdict.Method)).Inc()
	}
	result.Summary.Total = len(batch)
	result.Summary.AvgScore = scoreSum / float64(len(batch))
	result.Summary.DurationMs = time.Since(start).Milliseconds()

	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	if result.Summary.Suspicious > 0 {
		metrics.BatchesScoredTotal.WithLabelValues("suspicious").Inc()
	} else {
		metrics.BatchesScoredTotal.WithLabelValues("clean").Inc()
	}

	s.persist(ctx, tenantID, batch, result)
	s.notify(ctx, result)

	s.logger.Info("batch scored",
		"tenant_id", tenantID,
		"batch_id", result.BatchID,
		"total", result.Summary.Total,
		"suspicious", result.Summary.Suspicious,
		"anomalies", result.Summary.Anomalies,
		"model_trained", modelTrained,
		"duration_ms", result.Summary.DurationMs)
	return result, nil
}

// predict engineers features and runs the tenant model, training it first
// when absent. Any model-side failure degrades to a neutral prediction.
func (s *Scorer) predict(ctx context.Context, tenantID string, batch []*domain.Receivable, policy *domain.RiskPolicy) (*anomaly.PredictResult, bool) {
	neutral := &anomaly.PredictResult{
		Flags:  make([]bool, len(batch)),
		Scores: make([]float64, len(batch)),
	}
	kind := policy.Kind()

	matrix, err := s.engineer.Matrix(ctx, tenantID, batch, policy.StableBaseline)
	if err != nil {
		s.logger.Warn("feature engineering failed, scoring rules-only",
			"tenant_id", tenantID, "error", err)
		return neutral, false
	}

	trained := false
	if !s.models.IsTrained(tenantID, kind) && len(batch) >= minTrainSamples {
		trainStart := time.Now()
		info, err := s.models.Train(ctx, tenantID, kind, matrix, policy.Contamination())
		metrics.ModelTrainingDuration.WithLabelValues(string(kind)).Observe(time.Since(trainStart).Seconds())
		if err != nil {
			metrics.ModelTrainingsTotal.WithLabelValues(string(kind), "error").Inc()
			s.logger.Warn("lazy training failed, scoring rules-only",
				"tenant_id", tenantID, "kind", kind, "error", err)
			return neutral, false
		}
		metrics.ModelTrainingsTotal.WithLabelValues(string(kind), "ok").Inc()
		trained = true
		if s.audit != nil {
			s.audit.ModelTrained(context.WithoutCancel(ctx), info)
		}
	}

	prediction, err := s.models.Predict(ctx, tenantID, kind, matrix, policy.StableBaseline)
	if err != nil {
		s.logger.Warn("model prediction failed, scoring rules-only",
			"tenant_id", tenantID, "kind", kind, "error", err)
		return neutral, trained
	}
	if s.audit != nil && prediction.Trained {
		anomalies := 0
		for _, flagged := range prediction.Flags {
			if flagged {
				anomalies++
			}
		}
		go s.audit.ModelPrediction(context.WithoutCancel(ctx), tenantID, kind, len(batch), anomalies)
	}
	return prediction, trained
}

// fuse combines rule and model signals for one record.
func fuse(rv *domain.RuleVerdict, pred *anomaly.PredictResult, i int, policy *domain.RiskPolicy) *domain.Verdict {
	modelScore := pred.Scores[i]
	modelSuspicious := pred.Flags[i]
	if policy.ScoreThreshold > 0 {
		modelSuspicious = pred.Trained && modelScore >= policy.ScoreThreshold
	}

	verdict := &domain.Verdict{
		ReceivableID: rv.ReceivableID,
		Reasons:      append([]string{}, rv.Reasons...),
		ModelScore:   modelScore,
		RuleResults:  rv.Results,
		Method:       domain.MethodNone,
	}

	if modelSuspicious {
		verdict.Reasons = append(verdict.Reasons, rules.ReasonModelAnomaly)
	}
	verdict.Suspicious = rv.Suspicious || modelSuspicious

	ruleScore := 0.0
	if rv.Suspicious {
		ruleScore = RuleHitScore
	}
	verdict.Score = ruleScore
	if policy.ModelEnabled && modelScore > verdict.Score {
		verdict.Score = modelScore
	}

	switch {
	case rv.Suspicious && modelSuspicious:
		verdict.Method = domain.MethodBoth
	case rv.Suspicious:
		verdict.Method = domain.MethodRules
	case modelSuspicious:
		verdict.Method = domain.MethodModel
	}
	return verdict
}

// persist stores the batch and its scored records. Best-effort: storage
// failures are logged, the verdicts are still returned to the caller.
func (s *Scorer) persist(ctx context.Context, tenantID string, batch []*domain.Receivable, result *domain.BatchResult) {
	if s.repo == nil {
		return
	}

	record := &domain.BatchRecord{
		ID:           result.BatchID,
		TenantID:     tenantID,
		Total:        result.Summary.Total,
		Suspicious:   result.Summary.Suspicious,
		Anomalies:    result.Summary.Anomalies,
		AvgScore:     result.Summary.AvgScore,
		ModelTrained: result.ModelTrained,
		ModelKind:    result.ModelKind,
		DurationMs:   result.Summary.DurationMs,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.SaveBatch(ctx, tenantID, record); err != nil {
		s.logger.Warn("failed to persist batch", "tenant_id", tenantID, "batch_id", result.BatchID, "error", err)
		return
	}

	scored := make([]*domain.ScoredReceivable, len(batch))
	for i, rec := range batch {
		verdict := result.Verdicts[i]
		days, _ := features.DaysToMaturity(rec)
		scored[i] = &domain.ScoredReceivable{
			Receivable:     *rec,
			BatchID:        result.BatchID,
			Suspicious:     verdict.Suspicious,
			Reasons:        verdict.Reasons,
			Score:          verdict.Score,
			ModelScore:     verdict.ModelScore,
			Method:         verdict.Method,
			DaysToMaturity: int(days),
			CreatedAt:      record.CreatedAt,
		}
	}
	if err := s.repo.SaveResults(ctx, tenantID, scored); err != nil {
		s.logger.Warn("failed to persist results", "tenant_id", tenantID, "batch_id", result.BatchID, "error", err)
	}
}

// notify emits the audit event and bus messages for a scored batch. All
// fire-and-forget.
func (s *Scorer) notify(ctx context.Context, result *domain.BatchResult) {
	bg := context.WithoutCancel(ctx)
	if s.audit != nil {
		go s.audit.BatchScored(bg, result)
	}
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	go func() {
		if err := s.bus.Publish(bg, result.TenantID, domain.TopicBatchScored, payload); err != nil {
			s.logger.Warn("failed to publish scored batch",
				"tenant_id", result.TenantID, "batch_id", result.BatchID, "error", err)
		}
		if result.Summary.Suspicious > 0 {
			if err := s.bus.Publish(bg, result.TenantID, domain.TopicAlert, payload); err != nil {
				s.logger.Warn("failed to publish alert",
					"tenant_id", result.TenantID, "batch_id", result.BatchID, "error", err)
			}
		}
	}()
}
