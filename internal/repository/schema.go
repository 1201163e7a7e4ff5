package repository

// Schema definitions for the Detecta database.
// Compatible with both SQLite and PostgreSQL.

const schemaReceivables = `
CREATE TABLE IF NOT EXISTS receivables (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    drawer TEXT NOT NULL,
    debtor TEXT NOT NULL,
    amount REAL NOT NULL,
    issue_date TEXT NOT NULL,
    maturity_date TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    fiscal_linked INTEGER NOT NULL,
    status TEXT,
    suspicious INTEGER NOT NULL,
    reasons TEXT NOT NULL,
    score REAL NOT NULL,
    model_score REAL NOT NULL,
    method TEXT NOT NULL,
    days_to_maturity INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, batch_id, id)
);

CREATE INDEX IF NOT EXISTS idx_receivables_tenant ON receivables(tenant_id);
CREATE INDEX IF NOT EXISTS idx_receivables_batch ON receivables(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_receivables_suspicious ON receivables(tenant_id, suspicious);
CREATE INDEX IF NOT EXISTS idx_receivables_drawer ON receivables(tenant_id, drawer);
`

const schemaBatches = `
CREATE TABLE IF NOT EXISTS scoring_batches (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    total INTEGER NOT NULL,
    suspicious INTEGER NOT NULL,
    anomalies INTEGER NOT NULL,
    avg_score REAL NOT NULL,
    model_trained INTEGER NOT NULL,
    model_kind TEXT,
    duration_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON scoring_batches(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batches_created ON scoring_batches(tenant_id, created_at);
`

const schemaRiskPolicies = `
CREATE TABLE IF NOT EXISTS risk_policies (
    tenant_id TEXT PRIMARY KEY,
    sensitivity TEXT NOT NULL,
    rules_enabled INTEGER NOT NULL DEFAULT 1,
    model_enabled INTEGER NOT NULL DEFAULT 1,
    model_kind TEXT NOT NULL DEFAULT 'global',
    score_threshold REAL NOT NULL DEFAULT 0,
    stable_baseline INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaModelRegistry = `
CREATE TABLE IF NOT EXISTS model_registry (
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    contamination REAL NOT NULL,
    samples INTEGER NOT NULL,
    trained_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, kind)
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

const schemaAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    details TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReceivables,
		schemaBatches,
		schemaRiskPolicies,
		schemaModelRegistry,
		schemaRuleConfigs,
		schemaAuditEvents,
	}
}
