package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixflow/helixflow/pkg/cache"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// RuleService manages business rules. Every mutation invalidates the tenant's
// cached rule listings so the coordinator sees changes on the next trigger.
type RuleService struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	cache       cache.RuleCache
	logger      *slog.Logger
}

func NewRuleService(persistence persistence.Persistence, ruleCache cache.RuleCache, logger *slog.Logger) *RuleService {
	return &RuleService{
		persistence: persistence,
		validate:    validator.New(),
		cache:       ruleCache,
		logger:      logger.With("module", "rule_service"),
	}
}

func (s *RuleService) Create(ctx context.Context, rule *models.BusinessRule) (*models.BusinessRule, error) {
	if err := s.checkShape(rule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidate(ctx, rule.TenantID)
	s.logger.InfoContext(ctx, "Rule created", "rule_id", rule.ID, "entity_type", rule.EntityType)

	return rule, nil
}

func (s *RuleService) Update(ctx context.Context, tenantID, id string, updated *models.BusinessRule) (*models.BusinessRule, error) {
	current, err := s.persistence.Rules().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updated.ID = current.ID
	updated.TenantID = current.TenantID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	if err := s.checkShape(updated); err != nil {
		return nil, err
	}

	if err := s.persistence.Rules().Save(ctx, updated); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID)

	return updated, nil
}

// SetActive toggles a rule without touching its content.
func (s *RuleService) SetActive(ctx context.Context, tenantID, id string, active bool) (*models.BusinessRule, error) {
	rule, err := s.persistence.Rules().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	rule.IsActive = active
	rule.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID)

	return rule, nil
}

func (s *RuleService) Get(ctx context.Context, tenantID, id string) (*models.BusinessRule, error) {
	return s.persistence.Rules().GetByID(ctx, tenantID, id)
}

func (s *RuleService) List(ctx context.Context, tenantID string) ([]*models.BusinessRule, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return s.persistence.Rules().List(ctx, tenantID)
}

func (s *RuleService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.persistence.Rules().Delete(ctx, tenantID, id); err != nil {
		return err
	}

	s.invalidate(ctx, tenantID)

	return nil
}

func (s *RuleService) ListExecutions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleExecution, error) {
	return s.persistence.RuleExecutions().ListByRule(ctx, tenantID, ruleID)
}

// checkShape validates the rule document: required fields via struct tags,
// then the closed operator and action-type sets.
func (s *RuleService) checkShape(rule *models.BusinessRule) error {
	if err := s.validate.Struct(rule); err != nil {
		return &ServiceError{Op: "ValidateRule", Message: err.Error(), Err: ErrInvalidRuleShape}
	}

	for _, condition := range rule.Conditions {
		if !validOperator(condition.Operator) {
			return &ServiceError{
				Op:      "ValidateRule",
				Message: fmt.Sprintf("unknown operator %q", condition.Operator),
				Err:     ErrInvalidRuleShape,
			}
		}
	}

	for _, action := range rule.Actions {
		if !validActionType(action.Type) {
			return &ServiceError{
				Op:      "ValidateRule",
				Message: fmt.Sprintf("unknown action type %q", action.Type),
				Err:     ErrInvalidRuleShape,
			}
		}
	}

	return nil
}

func (s *RuleService) invalidate(ctx context.Context, tenantID string) {
	if s.cache != nil {
		s.cache.InvalidateRules(ctx, tenantID)
	}
}

func validOperator(op models.Operator) bool {
	for _, known := range models.Operators {
		if op == known {
			return true
		}
	}

	return false
}

func validActionType(t models.ActionType) bool {
	for _, known := range models.ActionTypes {
		if t == known {
			return true
		}
	}

	return false
}
