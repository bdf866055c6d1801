package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixflow/helixflow/pkg/cache"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/validation"
)

// DefinitionService manages the workflow definition lifecycle: drafts,
// publishing, activation flags and versioned cloning. Published graphs are
// frozen; changes go through CloneAsNewVersion.
type DefinitionService struct {
	persistence persistence.Persistence
	validator   *validation.Validator
	cache       cache.DefinitionCache
	logger      *slog.Logger
}

func NewDefinitionService(
	persistence persistence.Persistence,
	validator *validation.Validator,
	definitionCache cache.DefinitionCache,
	logger *slog.Logger,
) *DefinitionService {
	return &DefinitionService{
		persistence: persistence,
		validator:   validator,
		cache:       definitionCache,
		logger:      logger.With("module", "definition_service"),
	}
}

// Create validates and stores a new draft definition. The version is the next
// minor version after the latest one recorded for the name.
func (s *DefinitionService) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if err := s.validator.Validate(def); err != nil {
		return nil, err
	}

	latest, err := s.persistence.Definitions().LatestVersion(ctx, def.TenantID, def.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to determine latest version: %w", err)
	}

	now := time.Now().UTC()
	def.ID = uuid.New().String()
	def.Version = nextVersion(latest)
	def.IsPublished = false
	def.PublishedAt = nil
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Definition created",
		"definition_id", def.ID,
		"name", def.Name,
		"version", def.Version,
	)

	return def, nil
}

// Update replaces a draft definition's content. Published definitions are
// frozen and reject updates.
func (s *DefinitionService) Update(ctx context.Context, tenantID, id string, updated *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	current, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if current.IsPublished {
		return nil, &ServiceError{Op: "UpdateDefinition", Err: ErrCannotModifyPublished}
	}

	updated.ID = current.ID
	updated.TenantID = current.TenantID
	updated.Version = current.Version
	updated.IsPublished = false
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	if err := s.validator.Validate(updated); err != nil {
		return nil, err
	}

	if err := s.persistence.Definitions().Save(ctx, updated); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, id)

	return updated, nil
}

// Publish freezes the graph and makes the definition eligible for execution
// (together with the active flag).
func (s *DefinitionService) Publish(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	def, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if def.IsPublished {
		return nil, &ServiceError{Op: "PublishDefinition", Err: ErrAlreadyPublished}
	}

	if err := s.validator.Validate(def); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	def.IsPublished = true
	def.PublishedAt = &now
	def.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, id)
	s.logger.InfoContext(ctx, "Definition published", "definition_id", id, "version", def.Version)

	return def, nil
}

// Unpublish withdraws a published definition from execution eligibility.
func (s *DefinitionService) Unpublish(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	def, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if !def.IsPublished {
		return nil, &ServiceError{Op: "UnpublishDefinition", Err: ErrNotPublished}
	}

	def.IsPublished = false
	def.PublishedAt = nil
	def.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, id)

	return def, nil
}

// SetActive flips the activation flag without touching published state.
func (s *DefinitionService) SetActive(ctx context.Context, tenantID, id string, active bool) (*models.WorkflowDefinition, error) {
	def, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	def.IsActive = active
	def.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, id)

	return def, nil
}

// CloneAsNewVersion creates a draft copy of an existing definition under the
// next version of the same name. This is the only way to evolve a published
// graph.
func (s *DefinitionService) CloneAsNewVersion(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	source, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	latest, err := s.persistence.Definitions().LatestVersion(ctx, tenantID, source.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to determine latest version: %w", err)
	}

	now := time.Now().UTC()
	clone := *source
	clone.ID = uuid.New().String()
	clone.Version = nextVersion(latest)
	clone.IsPublished = false
	clone.PublishedAt = nil
	clone.DeletedAt = nil
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, &clone); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Definition cloned",
		"source_id", id,
		"definition_id", clone.ID,
		"version", clone.Version,
	)

	return &clone, nil
}

func (s *DefinitionService) Get(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	if s.cache != nil {
		if def, ok := s.cache.GetDefinition(ctx, tenantID, id); ok {
			return def, nil
		}
	}

	def, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && def.IsPublished {
		s.cache.SetDefinition(ctx, def)
	}

	return def, nil
}

func (s *DefinitionService) List(ctx context.Context, tenantID string, opts persistence.ListDefinitionsOptions) ([]*models.WorkflowDefinition, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return s.persistence.Definitions().List(ctx, tenantID, opts)
}

// Delete soft-deletes the definition. Existing executions keep their history;
// new starts are refused because a deleted definition is never startable.
func (s *DefinitionService) Delete(ctx context.Context, tenantID, id string) error {
	def, err := s.persistence.Definitions().GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	def.DeletedAt = &now
	def.IsActive = false
	def.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return err
	}

	s.invalidate(ctx, tenantID, id)

	return nil
}

func (s *DefinitionService) invalidate(ctx context.Context, tenantID, id string) {
	if s.cache != nil {
		s.cache.InvalidateDefinition(ctx, tenantID, id)
	}
}

// nextVersion bumps the minor segment of "major.minor[.patch]"; an unused
// name starts at 1.0.
func nextVersion(latest string) string {
	if latest == "" {
		return "1.0"
	}

	segments := strings.Split(latest, ".")

	major, _ := strconv.Atoi(segments[0])
	minor := 0

	if len(segments) > 1 {
		minor, _ = strconv.Atoi(segments[1])
	}

	return fmt.Sprintf("%d.%d", major, minor+1)
}
