// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle for connection pool metrics.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

// SaveBatch stores a scored batch summary with tenant isolation.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batch *domain.BatchRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO scoring_batches (
			id, tenant_id, total, suspicious, anomalies, avg_score,
			model_trained, model_kind, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		batch.ID, tenantID, batch.Total, batch.Suspicious, batch.Anomalies,
		batch.AvgScore, boolInt(batch.ModelTrained), string(batch.ModelKind),
		batch.DurationMs, batch.CreatedAt,
	)
	return err
}

// GetBatch retrieves a scored batch summary with tenant isolation.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.BatchRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, total, suspicious, anomalies, avg_score,
			   model_trained, model_kind, duration_ms, created_at
		FROM scoring_batches
		WHERE tenant_id = ? AND id = ?
	`

	var batch domain.BatchRecord
	var trained int
	var kind string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(
		&batch.ID, &batch.TenantID, &batch.Total, &batch.Suspicious, &batch.Anomalies,
		&batch.AvgScore, &trained, &kind, &batch.DurationMs, &batch.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	batch.ModelTrained = trained == 1
	batch.ModelKind = domain.ModelKind(kind)
	return &batch, nil
}

// SaveResults stores scored receivables in a single transaction.
func (r *SQLRepository) SaveResults(ctx context.Context, tenantID string, results []*domain.ScoredReceivable) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO receivables (
			id, tenant_id, batch_id, drawer, debtor, amount,
			issue_date, maturity_date, doc_type, fiscal_linked, status,
			suspicious, reasons, score, model_score, method,
			days_to_maturity, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, res := range results {
		reasons, _ := json.Marshal(res.Reasons)
		_, err := stmt.ExecContext(ctx,
			res.ID, tenantID, res.BatchID, res.Drawer, res.Debtor, res.Amount,
			res.IssueDate, res.MaturityDate, res.DocType, boolInt(res.FiscalLinked), res.Status,
			boolInt(res.Suspicious), string(reasons), res.Score, res.ModelScore, string(res.Method),
			res.DaysToMaturity, res.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListResults retrieves scored receivables with tenant isolation.
func (r *SQLRepository) ListResults(ctx context.Context, tenantID string, filter domain.ResultFilter) ([]*domain.ScoredReceivable, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, drawer, debtor, amount,
			   issue_date, maturity_date, doc_type, fiscal_linked, status,
			   suspicious, reasons, score, model_score, method,
			   days_to_maturity, created_at
		FROM receivables
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if filter.BatchID != "" {
		query += " AND batch_id = ?"
		args = append(args, filter.BatchID)
	}
	if filter.SuspiciousOnly {
		query += " AND suspicious = 1"
	}
	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ScoredReceivable
	for rows.Next() {
		var res domain.ScoredReceivable
		var fiscal, suspicious int
		var reasons, method string

		if err := rows.Scan(
			&res.ID, &res.TenantID, &res.BatchID, &res.Drawer, &res.Debtor, &res.Amount,
			&res.IssueDate, &res.MaturityDate, &res.DocType, &fiscal, &res.Status,
			&suspicious, &reasons, &res.Score, &res.ModelScore, &method,
			&res.DaysToMaturity, &res.CreatedAt,
		); err != nil {
			return nil, err
		}

		res.FiscalLinked = fiscal == 1
		res.Suspicious = suspicious == 1
		res.Method = domain.DetectionMethod(method)
		json.Unmarshal([]byte(reasons), &res.Reasons)
		results = append(results, &res)
	}
	return results, rows.Err()
}

// GetStats aggregates the tenant's scored history.
func (r *SQLRepository) GetStats(ctx context.Context, tenantID string) (*domain.TenantStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	stats := &domain.TenantStats{ByMethod: make(map[domain.DetectionMethod]int)}

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(suspicious), 0),
			   COALESCE(AVG(score), 0),
			   COALESCE(SUM(amount), 0)
		FROM receivables
		WHERE tenant_id = ?
	`
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&stats.TotalReceivables, &stats.TotalSuspicious, &stats.AvgScore, &stats.TotalAmount,
	)
	if err != nil {
		return nil, err
	}

	query = `SELECT COUNT(*) FROM scoring_batches WHERE tenant_id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(&stats.TotalBatches); err != nil {
		return nil, err
	}

	query = `
		SELECT method, COUNT(*)
		FROM receivables
		WHERE tenant_id = ? AND method != ''
		GROUP BY method
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, err
		}
		stats.ByMethod[domain.DetectionMethod(method)] = count
	}
	return stats, rows.Err()
}

// DrawerAggregates computes per-drawer history from the scored receivables.
// The standard deviation uses the population formula so it stays portable
// across SQLite and PostgreSQL.
func (r *SQLRepository) DrawerAggregates(ctx context.Context, tenantID string) ([]*domain.DrawerAggregate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT drawer,
			   COUNT(*),
			   AVG(amount),
			   AVG(amount * amount),
			   AVG(days_to_maturity),
			   AVG(fiscal_linked)
		FROM receivables
		WHERE tenant_id = ?
		GROUP BY drawer
		ORDER BY drawer
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []*domain.DrawerAggregate
	for rows.Next() {
		var agg domain.DrawerAggregate
		var sqMean float64
		if err := rows.Scan(&agg.Drawer, &agg.Count, &agg.AmountMean, &sqMean,
			&agg.DaysMean, &agg.FiscalRate); err != nil {
			return nil, err
		}
		if variance := sqMean - agg.AmountMean*agg.AmountMean; variance > 0 {
			agg.AmountStd = math.Sqrt(variance)
		}
		aggs = append(aggs, &agg)
	}
	return aggs, rows.Err()
}

// SavePolicy upserts a tenant's risk policy.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.RiskPolicy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO risk_policies (
			tenant_id, sensitivity, rules_enabled, model_enabled,
			model_kind, score_threshold, stable_baseline, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			sensitivity = excluded.sensitivity,
			rules_enabled = excluded.rules_enabled,
			model_enabled = excluded.model_enabled,
			model_kind = excluded.model_kind,
			score_threshold = excluded.score_threshold,
			stable_baseline = excluded.stable_baseline,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, string(policy.Sensitivity), boolInt(policy.RulesEnabled),
		boolInt(policy.ModelEnabled), string(policy.Kind()), policy.ScoreThreshold,
		boolInt(policy.StableBaseline), now,
	)
	return err
}

// GetPolicy retrieves a tenant's risk policy.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string) (*domain.RiskPolicy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, sensitivity, rules_enabled, model_enabled,
			   model_kind, score_threshold, stable_baseline, updated_at
		FROM risk_policies
		WHERE tenant_id = ?
	`

	var policy domain.RiskPolicy
	var sensitivity, kind string
	var rulesOn, modelOn, stable int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&policy.TenantID, &sensitivity, &rulesOn, &modelOn,
		&kind, &policy.ScoreThreshold, &stable, &policy.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	policy.Sensitivity = domain.Sensitivity(sensitivity)
	policy.ModelKind = domain.ModelKind(kind)
	policy.RulesEnabled = rulesOn == 1
	policy.ModelEnabled = modelOn == 1
	policy.StableBaseline = stable == 1
	return &policy, nil
}

// SaveModelInfo upserts model registry metadata.
func (r *SQLRepository) SaveModelInfo(ctx context.Context, tenantID string, info *domain.ModelInfo) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO model_registry (tenant_id, kind, contamination, samples, trained_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, kind) DO UPDATE SET
			contamination = excluded.contamination,
			samples = excluded.samples,
			trained_at = excluded.trained_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, string(info.Kind), info.Contamination, info.Samples, info.TrainedAt,
	)
	return err
}

// ListModelInfo retrieves the tenant's model registry entries.
func (r *SQLRepository) ListModelInfo(ctx context.Context, tenantID string) ([]*domain.ModelInfo, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, kind, contamination, samples, trained_at
		FROM model_registry
		WHERE tenant_id = ?
		ORDER BY kind
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*domain.ModelInfo
	for rows.Next() {
		var info domain.ModelInfo
		var kind string
		if err := rows.Scan(&info.TenantID, &kind, &info.Contamination,
			&info.Samples, &info.TrainedAt); err != nil {
			return nil, err
		}
		info.Kind = domain.ModelKind(kind)
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

// SaveRuleConfig upserts a tenant rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, reason,
			enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Reason, boolInt(rule.Enabled), now, now,
	)
	return err
}

// ListRuleConfigs retrieves active tenant rules in creation order, matching
// the rule engine's evaluation order for custom rules.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int
		if err := rows.Scan(&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &cfg.Reason, &enabled); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// SaveAuditEvent stores one audit trail entry.
func (r *SQLRepository) SaveAuditEvent(ctx context.Context, tenantID string, event *domain.AuditEvent) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	details, _ := json.Marshal(event.Details)
	query := `
		INSERT INTO audit_events (id, tenant_id, type, severity, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, tenantID, string(event.Type), string(event.Severity),
		string(details), event.Timestamp,
	)
	return err
}

// ListAuditEvents retrieves the most recent audit entries.
func (r *SQLRepository) ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, type, severity, details, timestamp
		FROM audit_events
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var eventType, severity, details string
		if err := rows.Scan(&event.ID, &event.TenantID, &eventType, &severity,
			&details, &event.Timestamp); err != nil {
			return nil, err
		}
		event.Type = domain.AuditEventType(eventType)
		event.Severity = domain.AuditSeverity(severity)
		json.Unmarshal([]byte(details), &event.Details)
		events = append(events, &event)
	}
	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
