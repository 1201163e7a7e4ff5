package anomaly

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// Model is a fitted scaler plus estimator for one (tenant, kind) pair.
// Exactly one of Forest or LOF is set, matching Kind. The struct is the gob
// persistence unit; concrete pointers avoid interface registration.
type Model struct {
	Kind          domain.ModelKind
	Contamination float64
	TrainedAt     time.Time
	Samples       int

	Scaler *StandardScaler
	Forest *IsolationForest
	LOF    *LocalOutlierFactor

	// Raw score range observed on the training data, used for stable
	// score normalization across batches.
	ScoreMin float64
	ScoreMax float64
}

func (m *Model) detector() Detector {
	if m.Forest != nil {
		return m.Forest
	}
	return m.LOF
}

// Info returns the registry metadata for this model.
func (m *Model) Info(tenantID string) *domain.ModelInfo {
	return &domain.ModelInfo{
		TenantID:      tenantID,
		Kind:          m.Kind,
		Contamination: m.Contamination,
		Samples:       m.Samples,
		TrainedAt:     m.TrainedAt,
	}
}

// Store persists fitted models as opaque blobs keyed by tenant and kind.
type Store interface {
	Save(ctx context.Context, tenantID string, kind domain.ModelKind, model *Model) error
	Load(ctx context.Context, tenantID string, kind domain.ModelKind) (*Model, error)
}

// FSStore keeps one gob snapshot per model at
// {base_path}/{tenant}_{kind}.model.
type FSStore struct {
	basePath string
}

// NewFSStore creates the base directory if needed.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &FSStore{basePath: basePath}, nil
}

func (s *FSStore) path(tenantID string, kind domain.ModelKind) (string, error) {
	if tenantID == "" || strings.ContainsAny(tenantID, `/\`) {
		return "", fmt.Errorf("tenant id %q not usable as model key: %w", tenantID, domain.ErrInvalidInput)
	}
	return filepath.Join(s.basePath, fmt.Sprintf("%s_%s.model", tenantID, kind)), nil
}

// Save writes the snapshot atomically via a temp file rename.
func (s *FSStore) Save(ctx context.Context, tenantID string, kind domain.ModelKind, model *Model) error {
	path, err := s.path(tenantID, kind)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, "model-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(model); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model %s/%s: %w", tenantID, kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store model %s/%s: %w", tenantID, kind, err)
	}
	return nil
}

// Load reads a snapshot. A missing file maps to ErrNoModel.
func (s *FSStore) Load(ctx context.Context, tenantID string, kind domain.ModelKind) (*Model, error) {
	path, err := s.path(tenantID, kind)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("model %s/%s: %w", tenantID, kind, domain.ErrNoModel)
		}
		return nil, fmt.Errorf("failed to open model %s/%s: %w", tenantID, kind, err)
	}
	defer f.Close()

	var model Model
	if err := gob.NewDecoder(f).Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to decode model %s/%s: %w", tenantID, kind, err)
	}
	return &model, nil
}
