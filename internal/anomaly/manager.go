package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/syncutil"
)

// trainSeed fixes estimator randomness so retraining on the same batch
// reproduces the same model.
const trainSeed = 42

// PredictResult is the typed outcome of a batch prediction. Scores are
// normalized to [0,1] with higher meaning more anomalous.
type PredictResult struct {
	Flags   []bool
	Scores  []float64
	Trained bool
}

// Manager owns the in-memory tenant models and their persistence. Training
// for the same (tenant, kind) is serialized through sharded locks; reads
// never block on training of other tenants.
type Manager struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger

	locks syncutil.ShardedMutex

	mu     sync.RWMutex
	models map[string]*Model
}

// NewManager creates a model manager. timeout bounds a single training run;
// zero disables the bound.
func NewManager(store Store, timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "anomaly"),
		models:  make(map[string]*Model),
	}
}

func modelKey(tenantID string, kind domain.ModelKind) string {
	return tenantID + "|" + string(kind)
}

// Train fits a fresh model for the tenant and kind on an already engineered
// feature matrix. On any failure, including timeout, the previously trained
// model stays in place.
func (m *Manager) Train(ctx context.Context, tenantID string, kind domain.ModelKind, matrix [][]float64, contamination float64) (*domain.ModelInfo, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required: %w", domain.ErrInvalidInput)
	}
	unlock := m.locks.Lock(modelKey(tenantID, kind))
	defer unlock()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type outcome struct {
		model *Model
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		model, err := fitModel(kind, matrix, contamination)
		done <- outcome{model, err}
	}()

	select {
	case <-ctx.Done():
		m.logger.Warn("training aborted",
			"tenant_id", tenantID, "kind", kind, "error", ctx.Err())
		return nil, fmt.Errorf("training %s/%s: %w", tenantID, kind, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("training %s/%s: %w", tenantID, kind, out.err)
		}
		m.mu.Lock()
		m.models[modelKey(tenantID, kind)] = out.model
		m.mu.Unlock()

		m.logger.Info("model trained",
			"tenant_id", tenantID,
			"kind", kind,
			"samples", out.model.Samples,
			"contamination", contamination,
			"duration_ms", time.Since(start).Milliseconds())
		return out.model.Info(tenantID), nil
	}
}

func fitModel(kind domain.ModelKind, matrix [][]float64, contamination float64) (*Model, error) {
	if err := checkFinite(matrix); err != nil {
		return nil, err
	}

	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(matrix)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Kind:          kind,
		Contamination: contamination,
		TrainedAt:     time.Now().UTC(),
		Samples:       len(matrix),
		Scaler:        scaler,
	}
	switch kind {
	case domain.KindLocal:
		model.LOF = NewLocalOutlierFactor(contamination)
	default:
		model.Forest = NewIsolationForest(contamination, trainSeed)
	}

	if err := model.detector().Fit(scaled); err != nil {
		return nil, err
	}

	trainScores, err := model.detector().Score(scaled)
	if err != nil {
		return nil, err
	}
	model.ScoreMin, model.ScoreMax = trainScores[0], trainScores[0]
	for _, s := range trainScores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("numerical fitting error, non-finite training score: %w", domain.ErrInvalidInput)
		}
		if s < model.ScoreMin {
			model.ScoreMin = s
		}
		if s > model.ScoreMax {
			model.ScoreMax = s
		}
	}
	return model, nil
}

// checkFinite rejects matrices with NaN or Inf cells. An estimator fitted on
// them would carry a useless threshold and score every point NaN.
func checkFinite(matrix [][]float64) error {
	for i, row := range matrix {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("non-finite feature value at row %d column %d: %w",
					i, j, domain.ErrInvalidInput)
			}
		}
	}
	return nil
}

// Predict scores a feature matrix with the tenant's model. An untrained
// (tenant, kind) is not an error: every record comes back unflagged with
// score zero and Trained false. With stable set, scores normalize against
// the training score range instead of the batch's own range.
func (m *Manager) Predict(ctx context.Context, tenantID string, kind domain.ModelKind, matrix [][]float64, stable bool) (*PredictResult, error) {
	result := &PredictResult{
		Flags:  make([]bool, len(matrix)),
		Scores: make([]float64, len(matrix)),
	}

	m.mu.RLock()
	model := m.models[modelKey(tenantID, kind)]
	m.mu.RUnlock()
	if model == nil {
		return result, nil
	}
	result.Trained = true
	if len(matrix) == 0 {
		return result, nil
	}
	if err := checkFinite(matrix); err != nil {
		return nil, err
	}

	scaled, err := model.Scaler.Transform(matrix)
	if err != nil {
		return nil, err
	}
	raw, err := model.detector().Score(scaled)
	if err != nil {
		return nil, err
	}

	threshold := model.detector().Threshold()
	for i, s := range raw {
		result.Flags[i] = s > threshold
	}
	result.Scores = normalize(raw, model, stable)
	return result, nil
}

// normalize maps raw scores to [0,1]. Batch-relative by default; in stable
// mode the training score range is the reference so the same record keeps
// the same score across batches.
func normalize(raw []float64, model *Model, stable bool) []float64 {
	lo, hi := raw[0], raw[0]
	if stable {
		lo, hi = model.ScoreMin, model.ScoreMax
	} else {
		for _, s := range raw {
			if s < lo {
				lo = s
			}
			if s > hi {
				hi = s
			}
		}
	}

	out := make([]float64, len(raw))
	if hi <= lo {
		return out
	}
	for i, s := range raw {
		v := (s - lo) / (hi - lo)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}

// IsTrained reports whether an in-memory model exists for the pair.
func (m *Manager) IsTrained(tenantID string, kind domain.ModelKind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.models[modelKey(tenantID, kind)] != nil
}

// Info returns registry metadata for all of the tenant's in-memory models.
func (m *Manager) Info(tenantID string) []*domain.ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []*domain.ModelInfo
	for _, kind := range domain.ModelKinds() {
		if model := m.models[modelKey(tenantID, kind)]; model != nil {
			infos = append(infos, model.Info(tenantID))
		}
	}
	return infos
}

// Persist writes every in-memory model of the tenant to the store and
// returns how many were written. Nothing in memory is an ErrUntrained.
func (m *Manager) Persist(ctx context.Context, tenantID string) (int, error) {
	saved := 0
	for _, kind := range domain.ModelKinds() {
		m.mu.RLock()
		model := m.models[modelKey(tenantID, kind)]
		m.mu.RUnlock()
		if model == nil {
			continue
		}
		if err := m.store.Save(ctx, tenantID, kind, model); err != nil {
			return saved, err
		}
		saved++
	}
	if saved == 0 {
		return 0, fmt.Errorf("persist %s: %w", tenantID, domain.ErrUntrained)
	}
	return saved, nil
}

// Restore loads the tenant's persisted models into memory. Missing
// snapshots are skipped; the pair simply stays untrained.
func (m *Manager) Restore(ctx context.Context, tenantID string) (int, error) {
	restored := 0
	for _, kind := range domain.ModelKinds() {
		model, err := m.store.Load(ctx, tenantID, kind)
		if err != nil {
			if errors.Is(err, domain.ErrNoModel) {
				continue
			}
			return restored, err
		}
		m.mu.Lock()
		m.models[modelKey(tenantID, kind)] = model
		m.mu.Unlock()
		restored++
	}
	return restored, nil
}
