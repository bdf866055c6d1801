package services

import (
	"context"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// TenantStats aggregates counts per status for one tenant.
type TenantStats struct {
	Executions     map[models.ExecutionStatus]int64     `json:"executions"`
	RuleExecutions map[models.RuleExecutionStatus]int64 `json:"rule_executions"`
	Definitions    int                                  `json:"definitions"`
	PublishedDefs  int                                  `json:"published_definitions"`
}

// StatsService serves aggregate counters for dashboards and health views.
type StatsService struct {
	persistence persistence.Persistence
}

func NewStatsService(persistence persistence.Persistence) *StatsService {
	return &StatsService{persistence: persistence}
}

func (s *StatsService) TenantStats(ctx context.Context, tenantID string) (*TenantStats, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	executions, err := s.persistence.Executions().CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ruleExecutions, err := s.persistence.RuleExecutions().CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	definitions, err := s.persistence.Definitions().List(ctx, tenantID, persistence.ListDefinitionsOptions{})
	if err != nil {
		return nil, err
	}

	published := 0

	for _, def := range definitions {
		if def.IsPublished {
			published++
		}
	}

	return &TenantStats{
		Executions:     executions,
		RuleExecutions: ruleExecutions,
		Definitions:    len(definitions),
		PublishedDefs:  published,
	}, nil
}
