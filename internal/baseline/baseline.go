// Package baseline serves cross-batch drawer history for the stable feature
// mode, with a cache in front of the repository.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

const cacheKey = "drawer-aggregates"

// Provider reads drawer aggregates from scored history. Implements the
// feature engineer's BaselineProvider contract.
type Provider struct {
	repo   domain.Repository
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewProvider creates a baseline provider. cache may be nil; every call then
// hits the repository.
func NewProvider(repo domain.Repository, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "baseline"),
	}
}

// DrawerAggregates returns the tenant's persisted drawer history. Cache
// failures degrade to repository reads.
func (p *Provider) DrawerAggregates(ctx context.Context, tenantID string) ([]*domain.DrawerAggregate, error) {
	if p.cache != nil {
		if raw, err := p.cache.Get(ctx, tenantID, cacheKey); err == nil && raw != nil {
			var aggs []*domain.DrawerAggregate
			if err := json.Unmarshal(raw, &aggs); err == nil {
				return aggs, nil
			}
		}
	}

	aggs, err := p.repo.DrawerAggregates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load drawer baseline: %w", err)
	}

	if p.cache != nil {
		if raw, err := json.Marshal(aggs); err == nil {
			if err := p.cache.Set(ctx, tenantID, cacheKey, raw, p.ttl); err != nil {
				p.logger.Warn("failed to cache drawer baseline", "tenant_id", tenantID, "error", err)
			}
		}
	}
	return aggs, nil
}
