package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TozatoRodrigo/detecta-ia/internal/anomaly"
	"github.com/TozatoRodrigo/detecta-ia/internal/audit"
	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
	"github.com/TozatoRodrigo/detecta-ia/internal/rules"
	"github.com/TozatoRodrigo/detecta-ia/internal/scoring"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// policyCacheTTL bounds how long a resolved policy is served from cache.
const policyCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	scorer   *scoring.Scorer
	models   *anomaly.Manager
	engineer *features.Engineer
	audit    *audit.Logger
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, scorer *scoring.Scorer, models *anomaly.Manager, engineer *features.Engineer, auditLog *audit.Logger, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		scorer:   scorer,
		models:   models,
		engineer: engineer,
		audit:    auditLog,
		version:  version,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	BatchID string               `json:"batchId,omitempty"`
	Records []*domain.Receivable `json:"records"`

	// Policy overrides the tenant's stored policy for this batch only.
	Policy *domain.RiskPolicy `json:"policy,omitempty"`
}

// Score handles POST /score: synchronous batch scoring.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records are required",
		})
		return
	}

	policy := req.Policy
	if policy == nil {
		policy = h.resolvePolicy(ctx, tenantID)
	}

	result, err := h.scorer.ScoreBatch(ctx, tenantID, req.Records, policy)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("batch scoring failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ScoreAsync handles POST /score/async: enqueues a batch for the worker and
// returns immediately. Results arrive on the batch-scored topic.
func (h *Handler) ScoreAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records are required",
		})
		return
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	payload, err := json.Marshal(map[string]any{
		"batchId":  batchID,
		"tenantId": tenantID,
		"records":  req.Records,
		"policy":   req.Policy,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode batch",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchReceived, payload); err != nil {
		slog.Error("failed to enqueue batch", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue batch",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batchId": batchID,
		"status":  "queued",
		"records": len(req.Records),
	})
}

// GetBatch retrieves a scored batch summary by ID.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	batch, err := h.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "batch not found",
			})
			return
		}
		slog.Error("failed to get batch", "id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get batch",
		})
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// ListResults retrieves scored receivables, optionally filtered by batch and
// suspicion. Query params: batch_id, suspicious, limit, offset.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	filter := domain.ResultFilter{
		BatchID:        r.URL.Query().Get("batch_id"),
		SuspiciousOnly: r.URL.Query().Get("suspicious") == "true",
		Limit:          queryInt(r, "limit", 0),
		Offset:         queryInt(r, "offset", 0),
	}

	results, err := h.repo.ListResults(ctx, tenantID, filter)
	if err != nil {
		slog.Error("failed to list results", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list results",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// GetStats returns the tenant's aggregate scoring statistics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stats, err := h.repo.GetStats(ctx, tenantID)
	if err != nil {
		slog.Error("failed to get stats", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetPolicy returns the tenant's resolved risk policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	writeJSON(w, http.StatusOK, h.resolvePolicy(ctx, tenantID))
}

// PutPolicy stores the tenant's risk policy.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var policy domain.RiskPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	switch policy.Sensitivity {
	case "", domain.SensitivityLow, domain.SensitivityMedium, domain.SensitivityHigh:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "sensitivity must be low, medium, or high",
		})
		return
	}
	if policy.Sensitivity == "" {
		policy.Sensitivity = domain.SensitivityMedium
	}

	switch policy.ModelKind {
	case "", domain.KindGlobal, domain.KindLocal:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "modelKind must be global or local",
		})
		return
	}

	if policy.ScoreThreshold < 0 || policy.ScoreThreshold > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scoreThreshold must be between 0 and 1",
		})
		return
	}

	policy.TenantID = tenantID
	policy.UpdatedAt = time.Now().UTC()

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, tenantID, &policy); err != nil {
			slog.Error("failed to save policy", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	if h.cache != nil {
		_ = h.cache.SetPolicy(ctx, tenantID, &policy, policyCacheTTL)
	}

	if h.audit != nil {
		h.audit.PolicyChanged(ctx, &policy)
	}

	slog.Info("policy updated", "tenant_id", tenantID, "sensitivity", policy.Sensitivity)
	writeJSON(w, http.StatusOK, &policy)
}

// ListModels returns the tenant's trained model metadata.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	infos := h.models.Info(tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"models": infos,
		"count":  len(infos),
	})
}

// TrainRequest is the request body for POST /models/{kind}/train.
type TrainRequest struct {
	Records []*domain.Receivable `json:"records"`
}

// TrainModel handles explicit model training for one estimator kind.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	kind := domain.ModelKind(chi.URLParam(r, "kind"))
	switch kind {
	case domain.KindGlobal, domain.KindLocal:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be global or local",
		})
		return
	}

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) < 2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least 2 records are required for training",
		})
		return
	}

	for _, rec := range req.Records {
		if err := rec.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid record: " + err.Error(),
			})
			return
		}
	}

	policy := h.resolvePolicy(ctx, tenantID)

	matrix, err := h.engineer.Matrix(ctx, tenantID, req.Records, policy.StableBaseline)
	if err != nil {
		slog.Error("feature extraction failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "feature extraction failed",
		})
		return
	}

	info, err := h.models.Train(ctx, tenantID, kind, matrix, policy.Contamination())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("model training failed", "tenant_id", tenantID, "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model training failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveModelInfo(ctx, tenantID, info); err != nil {
			slog.Warn("failed to register model", "tenant_id", tenantID, "kind", kind, "error", err)
		}
	}
	if h.audit != nil {
		h.audit.ModelTrained(ctx, info)
	}

	writeJSON(w, http.StatusOK, info)
}

// PersistModels saves the tenant's in-memory models to disk.
func (h *Handler) PersistModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	saved, err := h.models.Persist(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrUntrained) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "no trained models to persist",
			})
			return
		}
		slog.Error("model persist failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model persist failed",
		})
		return
	}

	if h.audit != nil {
		h.audit.ModelPersisted(ctx, tenantID, saved)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"persisted": saved,
	})
}

// RestoreModels loads the tenant's persisted models from disk.
func (h *Handler) RestoreModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	restored, err := h.models.Restore(ctx, tenantID)
	if err != nil {
		slog.Error("model restore failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model restore failed",
		})
		return
	}

	if h.audit != nil {
		h.audit.ModelRestored(ctx, tenantID, restored)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"restored": restored,
	})
}

// ListAuditEvents returns the tenant's audit trail, newest first.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := queryInt(r, "limit", 50)
	events, err := h.repo.ListAuditEvents(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list audit events", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audit events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new custom rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// Custom rules are evaluated after the builtin heuristics, in load order.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and reason are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": ruleConfig,
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
// Builtin heuristics always stay loaded.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// resolvePolicy returns the effective policy for a tenant: cache, then
// repository, then the default.
func (h *Handler) resolvePolicy(ctx context.Context, tenantID string) *domain.RiskPolicy {
	if h.cache != nil {
		if policy, err := h.cache.GetPolicy(ctx, tenantID); err == nil && policy != nil {
			return policy
		}
	}

	if h.repo != nil {
		policy, err := h.repo.GetPolicy(ctx, tenantID)
		if err == nil && policy != nil {
			if h.cache != nil {
				_ = h.cache.SetPolicy(ctx, tenantID, policy, policyCacheTTL)
			}
			return policy
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("policy lookup failed", "tenant_id", tenantID, "error", err)
		}
	}

	return domain.DefaultRiskPolicy(tenantID)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
