package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/helixflow/helixflow/pkg/models"
)

const redisKeyPrefix = "helixflow:cache:"

// Redis is a shared TTL cache for multi-node deployments. Cache errors are
// logged and treated as misses so the store remains the source of truth.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "redis_cache"),
	}
}

func (r *Redis) GetRules(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, bool) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+rulesKey(tenantID, entityType)).Bytes()
	if err != nil {
		return nil, false
	}

	var rules []*models.BusinessRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode cached rules", "error", err)

		return nil, false
	}

	return rules, true
}

func (r *Redis) SetRules(ctx context.Context, tenantID, entityType string, rules []*models.BusinessRule) {
	payload, err := json.Marshal(rules)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to encode rules for cache", "error", err)

		return
	}

	err = r.client.Set(ctx, redisKeyPrefix+rulesKey(tenantID, entityType), payload, r.ttl).Err()
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to cache rules", "error", err)
	}
}

func (r *Redis) InvalidateRules(ctx context.Context, tenantID string) {
	pattern := redisKeyPrefix + rulesKey(tenantID, "") + "*"

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.ErrorContext(ctx, "Failed to invalidate cached rules", "key", iter.Val(), "error", err)
		}
	}

	if err := iter.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to scan rule cache keys", "error", err)
	}
}

func (r *Redis) GetDefinition(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, bool) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+definitionKey(tenantID, id)).Bytes()
	if err != nil {
		return nil, false
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(payload, &def); err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode cached definition", "error", err)

		return nil, false
	}

	return &def, true
}

func (r *Redis) SetDefinition(ctx context.Context, def *models.WorkflowDefinition) {
	payload, err := json.Marshal(def)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to encode definition for cache", "error", err)

		return
	}

	err = r.client.Set(ctx, redisKeyPrefix+definitionKey(def.TenantID, def.ID), payload, r.ttl).Err()
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to cache definition", "error", err)
	}
}

func (r *Redis) InvalidateDefinition(ctx context.Context, tenantID, id string) {
	err := r.client.Del(ctx, redisKeyPrefix+definitionKey(tenantID, id)).Err()
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to invalidate cached definition", "error", err)
	}
}
