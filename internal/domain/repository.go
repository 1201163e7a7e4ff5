// Package domain defines the core interfaces and types for detecta-ia.
package domain

import (
	"context"
	"time"
)

// ResultFilter narrows ListResults queries.
type ResultFilter struct {
	BatchID        string
	SuspiciousOnly bool
	Limit          int
	Offset         int
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Batch operations
	SaveBatch(ctx context.Context, tenantID string, batch *BatchRecord) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*BatchRecord, error)

	// Scored receivable operations
	SaveResults(ctx context.Context, tenantID string, results []*ScoredReceivable) error
	ListResults(ctx context.Context, tenantID string, filter ResultFilter) ([]*ScoredReceivable, error)
	GetStats(ctx context.Context, tenantID string) (*TenantStats, error)

	// Drawer history for the stable-baseline feature mode
	DrawerAggregates(ctx context.Context, tenantID string) ([]*DrawerAggregate, error)

	// Risk policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *RiskPolicy) error
	GetPolicy(ctx context.Context, tenantID string) (*RiskPolicy, error)

	// Model registry operations
	SaveModelInfo(ctx context.Context, tenantID string, info *ModelInfo) error
	ListModelInfo(ctx context.Context, tenantID string) ([]*ModelInfo, error)

	// Custom rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Audit trail
	SaveAuditEvent(ctx context.Context, tenantID string, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*AuditEvent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
